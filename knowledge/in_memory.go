package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/ragmesh/core"
	"github.com/hupe1980/ragmesh/internal/util"
)

// Document is a retrievable chunk of text and the internal path it came from.
type Document struct {
	ID         string
	SourcePath string
	Text       string
	Metadata   map[string]any
}

type indexedDocument struct {
	Document
	terms map[string]struct{}
}

// InMemoryStore is a naive process-local KnowledgeClient. Scoring is the
// share of query terms found in a document (see util.Overlap); documents
// scoring zero are never returned.
//
// Concurrency: protected by RWMutex. Suitable for tests, demos and small
// document sets; use QdrantClient for semantic retrieval at scale.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]indexedDocument // knowledgeID -> documents in insertion order
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]indexedDocument)}
}

// Add appends documents to a knowledge base, creating it lazily. Documents
// without an ID get a generated one.
func (s *InMemoryStore) Add(knowledgeID string, docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			d.ID = core.NewID()
		}
		s.docs[knowledgeID] = append(s.docs[knowledgeID], indexedDocument{Document: d, terms: util.TermSet(d.Text + " " + d.SourcePath)})
	}
}

// Knowledge returns the ids of all loaded knowledge bases, sorted.
func (s *InMemoryStore) Knowledge() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Search implements core.KnowledgeClient.
func (s *InMemoryStore) Search(ctx context.Context, knowledgeID string, query string, topK int) (core.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return core.RetrievalResult{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs, ok := s.docs[knowledgeID]
	if !ok {
		return core.RetrievalResult{}, fmt.Errorf("%w: %s", core.ErrUnknownKnowledge, knowledgeID)
	}
	q := util.TermSet(query)
	passages := make([]core.Passage, 0, topK)
	for _, d := range docs {
		score := util.Overlap(q, d.terms)
		if score <= 0 {
			continue
		}
		md := make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			md[k] = v
		}
		passages = append(passages, core.Passage{ID: d.ID, SourcePath: d.SourcePath, Score: score, Text: d.Text, Metadata: md})
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if topK > 0 && len(passages) > topK {
		passages = passages[:topK]
	}
	return core.RetrievalResult{KnowledgeID: knowledgeID, Passages: passages}, nil
}

// DefaultChunkSize caps the characters per chunk produced by LoadDir and LoadFS.
const DefaultChunkSize = 1200

// LoadDir indexes every regular file under dir whose extension is in exts
// (all files when exts is empty). Files are split into paragraph chunks of
// at most chunkSize characters; SourcePath is the slash-separated walked path.
func (s *InMemoryStore) LoadDir(knowledgeID, dir string, exts []string, chunkSize int) (int, error) {
	l := newLoader(exts, chunkSize)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !l.accepts(path) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		l.add(filepath.ToSlash(path), raw)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load knowledge %q from %s: %w", knowledgeID, dir, err)
	}
	s.Add(knowledgeID, l.docs...)
	return len(l.docs), nil
}

// LoadFS is LoadDir over an fs.FS. SourcePath is the path inside fsys, so
// citation rules match independently of where fsys is rooted on disk.
func (s *InMemoryStore) LoadFS(knowledgeID string, fsys fs.FS, root string, exts []string, chunkSize int) (int, error) {
	l := newLoader(exts, chunkSize)
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !l.accepts(path) {
			return nil
		}
		raw, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		l.add(path, raw)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load knowledge %q from %s: %w", knowledgeID, root, err)
	}
	s.Add(knowledgeID, l.docs...)
	return len(l.docs), nil
}

type loader struct {
	allowed   map[string]bool
	chunkSize int
	docs      []Document
}

func newLoader(exts []string, chunkSize int) *loader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	return &loader{allowed: allowed, chunkSize: chunkSize}
}

func (l *loader) accepts(path string) bool {
	return len(l.allowed) == 0 || l.allowed[strings.ToLower(filepath.Ext(path))]
}

func (l *loader) add(src string, raw []byte) {
	for _, chunk := range Chunk(string(raw), l.chunkSize) {
		l.docs = append(l.docs, Document{SourcePath: src, Text: chunk})
	}
}

// Chunk splits text on blank lines and packs paragraphs into chunks of at
// most size characters. A single paragraph longer than size becomes its own
// chunk.
func Chunk(text string, size int) []string {
	paras := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}

var _ core.KnowledgeClient = (*InMemoryStore)(nil)
