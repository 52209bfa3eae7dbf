package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// fingerprint hashes a canonical JSON projection of the fields an
// idempotency key is bound to, so a replay with a different payload under
// the same key is detectable. Field order is fixed by the struct so the
// same logical request always serializes identically.
func fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

type initFingerprintFields struct {
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	ChunkSize    int64  `json:"chunk_size"`
	FileChecksum string `json:"file_checksum_sha256"`
}

func initFingerprint(fileName string, fileSize, chunkSize int64, fileChecksum string) (string, error) {
	return fingerprint(initFingerprintFields{
		FileName:     fileName,
		FileSize:     fileSize,
		ChunkSize:    chunkSize,
		FileChecksum: fileChecksum,
	})
}

type chunkFingerprintFields struct {
	UploadID   string `json:"upload_id"`
	ChunkIndex int    `json:"chunk_index"`
	SHA256     string `json:"chunk_checksum_sha256"`
}

func chunkFingerprint(uploadID string, index int, checksum string) (string, error) {
	return fingerprint(chunkFingerprintFields{UploadID: uploadID, ChunkIndex: index, SHA256: checksum})
}

type completeFingerprintFields struct {
	UploadID string `json:"upload_id"`
}

func completeFingerprint(uploadID string) (string, error) {
	return fingerprint(completeFingerprintFields{UploadID: uploadID})
}
