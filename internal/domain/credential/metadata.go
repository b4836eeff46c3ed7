package credential

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// TokenURIPrefix is the data URI scheme used for inline metadata.
const TokenURIPrefix = "data:application/json;base64,"

// Attribute is one trait of a metadata document.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Metadata is the public document describing a credential, in the layout
// wallets and marketplaces expect from token metadata.
type Metadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes"`
}

// RenderMetadata builds the document for a credential. The name and
// description use the course name snapshotted at issuance; image is the
// registry's current trophy image.
func RenderMetadata(c Credential, image string) Metadata {
	return Metadata{
		Name:        "SkillPath Trophy - " + c.CourseName,
		Description: fmt.Sprintf("Awarded to %s for completing the %s course on SkillPath.", c.Owner, c.CourseName),
		Image:       image,
		Attributes: []Attribute{
			{TraitType: "Course ID", Value: c.CourseID},
			{TraitType: "Date Claimed", Value: c.IssuedAt.UTC().Format(time.RFC3339)},
			{TraitType: "Non-Transferable", Value: "true"},
		},
	}
}

// Canonical returns the document's canonical JSON encoding. Field order is
// fixed by the struct, so equal documents encode to equal bytes.
func (m Metadata) Canonical() ([]byte, error) {
	return json.Marshal(m)
}

// TokenURI returns the document as a base64 data URI.
func (m Metadata) TokenURI() (string, error) {
	doc, err := m.Canonical()
	if err != nil {
		return "", err
	}
	return TokenURIPrefix + base64.StdEncoding.EncodeToString(doc), nil
}

// Digest returns the hex Keccak-256 hash of the canonical document, so a
// third party holding the document can check it was not altered.
func (m Metadata) Digest() (string, error) {
	doc, err := m.Canonical()
	if err != nil {
		return "", err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(doc)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// DecodeTokenURI parses a data URI produced by TokenURI.
func DecodeTokenURI(uri string) (Metadata, error) {
	if len(uri) < len(TokenURIPrefix) || uri[:len(TokenURIPrefix)] != TokenURIPrefix {
		return Metadata{}, fmt.Errorf("token uri: unsupported scheme")
	}
	raw, err := base64.StdEncoding.DecodeString(uri[len(TokenURIPrefix):])
	if err != nil {
		return Metadata{}, fmt.Errorf("token uri: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("token uri: %w", err)
	}
	return m, nil
}
