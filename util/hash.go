package util

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// FileMD5 returns the hex md5 of the file content.
func FileMD5(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}
