// Package documents is the read-only catalogue of reference material the
// assistant's users browse next to the chat.
package documents

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("document not found")

// Document describes one catalogued file.
type Document struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Type  string   `json:"type"` // pdf, ppt, json
	Size  string   `json:"size"`
	Date  string   `json:"date"`
	Tags  []string `json:"tags"`
}

// Repository is the backing store of the catalogue.
type Repository interface {
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	Search(ctx context.Context, query string) ([]Document, error)
}

// Matches reports whether query is a case-insensitive substring of the title
// or of any tag. The empty query matches everything.
func (d Document) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(d.Title), q) {
		return true
	}
	for _, tag := range d.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// Filter keeps the documents matching query.
func Filter(docs []Document, query string) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.Matches(query) {
			out = append(out, d)
		}
	}
	return out
}

// ByType keeps the documents of one type; an empty type keeps all of them.
func ByType(docs []Document, typ string) []Document {
	if typ == "" {
		return docs
	}
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if strings.EqualFold(d.Type, typ) {
			out = append(out, d)
		}
	}
	return out
}

func sortByID(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if len(docs[i].ID) != len(docs[j].ID) {
			return len(docs[i].ID) < len(docs[j].ID)
		}
		return docs[i].ID < docs[j].ID
	})
}

// Catalogue is the set of documents a fresh store is seeded with.
func Catalogue() []Document {
	return []Document{
		{ID: "1", Title: "Introduction to Cryptography", Type: "pdf", Size: "2.4 MB", Date: "2025-02-15", Tags: []string{"cryptography", "basics"}},
		{ID: "2", Title: "Network Security Best Practices", Type: "ppt", Size: "4.1 MB", Date: "2025-01-28", Tags: []string{"network", "security"}},
		{ID: "3", Title: "Public Key Infrastructure Overview", Type: "pdf", Size: "1.8 MB", Date: "2025-03-10", Tags: []string{"PKI", "certificates"}},
		{ID: "4", Title: "SSL/TLS Protocol Analysis", Type: "pdf", Size: "3.2 MB", Date: "2025-02-22", Tags: []string{"SSL", "TLS", "protocols"}},
		{ID: "5", Title: "Encryption Algorithms Comparison", Type: "ppt", Size: "5.7 MB", Date: "2025-03-05", Tags: []string{"algorithms", "encryption"}},
		{ID: "6", Title: "Firewall Configuration Guide", Type: "pdf", Size: "2.9 MB", Date: "2025-01-15", Tags: []string{"firewall", "configuration"}},
		{ID: "7", Title: "Threat Intelligence Data", Type: "json", Size: "1.2 MB", Date: "2025-03-20", Tags: []string{"threat", "intelligence"}},
	}
}
