package auth

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/bcrypt"
)

const (
	// UserFileMagic is a magic number to identify the operator credential file.
	UserFileMagic uint32 = 0x55535244 // "USRD"
	// CurrentUserFileVersion is the current version of the user file format.
	CurrentUserFileVersion uint8 = 1
)

// UserFileHeader represents the header of the operator credential file.
type UserFileHeader struct {
	Magic     uint32
	Version   uint8
	UserCount uint32
}

// UserRecord represents a single operator's bcrypt-hashed credential.
type UserRecord struct {
	Username     string
	PasswordHash string
}

// WriteUserFile writes a map of operator records to a binary file at the
// specified path.
func WriteUserFile(path string, users map[string]UserRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create user file: %w", err)
	}
	defer file.Close()

	header := UserFileHeader{
		Magic:     UserFileMagic,
		Version:   CurrentUserFileVersion,
		UserCount: uint32(len(users)),
	}

	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write user file header: %w", err)
	}

	for _, user := range users {
		if err := writeUserRecord(file, user); err != nil {
			return fmt.Errorf("failed to write user record for '%s': %w", user.Username, err)
		}
	}

	return nil
}

// ReadUserFile reads a binary operator credential file and returns a map
// of users keyed by username. A missing or empty file is not an error: it
// yields an empty map, so every credential check against it fails.
func ReadUserFile(path string) (map[string]UserRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]UserRecord), nil
		}
		return nil, fmt.Errorf("failed to open user file: %w", err)
	}
	defer file.Close()

	var header UserFileHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		if err == io.EOF {
			return make(map[string]UserRecord), nil
		}
		return nil, fmt.Errorf("failed to read user file header: %w", err)
	}

	if header.Magic != UserFileMagic {
		return nil, fmt.Errorf("invalid user file magic number: got %x", header.Magic)
	}
	if header.Version > CurrentUserFileVersion {
		return nil, fmt.Errorf("unsupported user file version: got %d", header.Version)
	}

	users := make(map[string]UserRecord, header.UserCount)
	for i := uint32(0); i < header.UserCount; i++ {
		record, err := readUserRecord(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read user record #%d: %w", i+1, err)
		}
		users[record.Username] = record
	}

	return users, nil
}

// HashPassword bcrypt-hashes an operator password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func writeUserRecord(w io.Writer, user UserRecord) error {
	if err := writeString(w, user.Username); err != nil {
		return err
	}
	return writeString(w, user.PasswordHash)
}

func readUserRecord(r io.Reader) (UserRecord, error) {
	var record UserRecord
	var err error

	record.Username, err = readString(r)
	if err != nil {
		return UserRecord{}, err
	}
	record.PasswordHash, err = readString(r)
	if err != nil {
		return UserRecord{}, err
	}
	return record, nil
}

func writeString(w io.Writer, s string) error {
	data := []byte(s)
	if err := binary.Write(w, binary.LittleEndian, uint16(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}
