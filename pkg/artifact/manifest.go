package artifact

import (
	"encoding/json"
	"os"

	"github.com/feederco/chunked-db-backup/pkg"
)

// BuildManifest checksums every part, in order, and assembles the artifact describing them.
// parts must be final on disk: each checksum is taken from the bytes that will be uploaded.
func BuildManifest(parts []Part, originalFilename string, createdAt Timestamp) (*Artifact, error) {
	if len(parts) == 0 {
		return nil, pkg.NewFileError(pkg.KindManifestFailed, originalFilename, "artifact has no parts", nil)
	}

	artifact := &Artifact{
		OriginalFilename:  originalFilename,
		CreatedAt:         createdAt,
		ChecksumAlgorithm: ChecksumAlgorithm,
		Parts:             make([]Part, 0, len(parts)),
	}

	for _, part := range parts {
		checksum, err := Checksum(part.Path)
		if err != nil {
			return nil, err
		}

		part.Checksum = checksum
		artifact.Parts = append(artifact.Parts, part)
		artifact.TotalSize += part.Size
	}

	artifact.TotalParts = len(artifact.Parts)

	return artifact, nil
}

// WriteManifest serializes the artifact to path
func WriteManifest(artifact *Artifact, path string) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return pkg.NewFileError(pkg.KindManifestFailed, ManifestFilename, "could not serialize manifest", err)
	}

	if err = os.WriteFile(path, data, 0644); err != nil {
		return pkg.NewFileError(pkg.KindManifestFailed, ManifestFilename, "could not write manifest", err)
	}

	return nil
}

// ReadManifest loads a manifest written by WriteManifest
func ReadManifest(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkg.NewFileError(pkg.KindVerificationFailed, ManifestFilename, "could not read manifest", err)
	}

	var artifact Artifact
	if err = json.Unmarshal(data, &artifact); err != nil {
		return nil, pkg.NewFileError(pkg.KindVerificationFailed, ManifestFilename, "could not parse manifest", err)
	}

	return &artifact, nil
}
