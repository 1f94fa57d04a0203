// Package memtree implements the hierarchical embedded memory store of
// spec.md §4.6: an append-only tree of embedded text nodes supporting
// O(log N) insertion and importance-weighted hierarchical retrieval.
//
// It reuses the teacher's embeddings.Provider interface shape
// (internal/memory/embeddings) and its sqlite persistence idiom
// (internal/memory/backend/sqlitevec — transactional insert, BLOB-encoded
// float32 vectors, manual cosine similarity). The tree algorithm itself
// (parent-centroid invariant, max-cosine-similarity descent, importance
// boosts) is new: the teacher's own internal/memory/hierarchy.go, despite
// its name, is a flat scope-weighted search, not a tree.
package memtree

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/memory/embeddings"
)

// Importance classifies how aggressively a node should be retrieved, and
// whether it is indexed at all.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceNormal   Importance = "normal"
	ImportanceDiscard  Importance = "discard"
)

// importanceBoost implements spec.md §4.6's retrieval score multipliers.
func importanceBoost(i Importance) float32 {
	switch i {
	case ImportanceCritical:
		return 1.4
	case ImportanceHigh:
		return 1.2
	default:
		return 1.0
	}
}

// Node is one entry in the tree. Children are never stored as owning
// pointers (spec.md §9 "cyclic graphs" design note): they are discovered
// by indexed lookup on ParentID, keeping the tree a plain node_id -> node
// mapping (an arena), not a pointer graph.
type Node struct {
	ID         uint64
	ParentID   *uint64
	Text       string
	Embedding  []float32
	Level      uint32
	Importance Importance
	CreatedAt  time.Time
}

// MaxBranchingFactor bounds how many children a node may accumulate
// before Insert stops descending into it and attaches a new sibling
// subtree instead, matching spec.md's "branching factor limit" cutoff.
const MaxBranchingFactor = 8

// Store is the persistence boundary memtree needs: a transactional
// key-value-ish node store. *SQLiteStore implements it.
type Store interface {
	// NextID allocates node ids; root is always 0 and exists from
	// initialization.
	NextID(ctx context.Context) (uint64, error)

	// InsertPath persists, in a single transaction, the full chain from
	// root to the newly attached leaf, root first (spec.md §4.6:
	// "foreign key enforcement is ON; every insert MUST persist the root
	// first, then ancestors, then the new leaf, ordered by node_id").
	// ancestors includes every node whose embedding changed (centroid
	// recompute) but excludes leaf, which is always newly created.
	InsertPath(ctx context.Context, ancestors []Node, leaf Node) error

	// LoadAll reads every persisted node, used to rebuild the in-memory
	// tree on startup.
	LoadAll(ctx context.Context) ([]Node, error)

	// AppendConversationLog records raw text for flat history even when
	// it was not indexed into the tree (spec.md §4.6 Insert).
	AppendConversationLog(ctx context.Context, role, content string, at time.Time) error

	Close() error
}

// Tree is the in-memory hierarchical index. All mutation goes through
// Insert; Retrieve is read-only. An RWMutex serializes inserts against
// retrieves (spec.md §5: "MemTree: internal RW-lock; inserts take write,
// retrieves take read").
type Tree struct {
	mu        sync.RWMutex
	nodes     map[uint64]*Node
	children  map[uint64][]uint64
	dimension int

	embedder embeddings.Provider
	store    Store
}

// Config configures a new Tree.
type Config struct {
	Dimension int
	Embedder  embeddings.Provider
	Store     Store
}

// New constructs an empty Tree rooted at node 0. If store already has
// persisted nodes (a reopened database), call Load to rebuild from them
// instead of treating this as a fresh tree.
func New(cfg Config) (*Tree, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("memtree: embedder is required")
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = cfg.Embedder.Dimension()
	}

	root := &Node{ID: 0, ParentID: nil, Level: 0, Importance: ImportanceNormal, CreatedAt: time.Now()}
	t := &Tree{
		nodes:     map[uint64]*Node{0: root},
		children:  make(map[uint64][]uint64),
		dimension: dim,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
	}
	return t, nil
}

// Load rebuilds the in-memory tree from a previously persisted Store.
func Load(ctx context.Context, cfg Config) (*Tree, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		return t, nil
	}
	nodes, err := cfg.Store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("memtree: load: %w", err)
	}
	for i := range nodes {
		n := nodes[i]
		t.nodes[n.ID] = &n
		if n.ParentID != nil {
			t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
		}
	}
	return t, nil
}

// filterNoise implements spec.md §4.6's Insert noise filter: short text,
// greetings, and bare acknowledgements are never indexed.
func filterNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return true
	}
	lower := strings.ToLower(trimmed)
	noisePhrases := []string{
		"hi", "hello", "hey", "thanks", "thank you", "ok", "okay",
		"sounds good", "got it", "will do", "yep", "yup", "sure",
	}
	for _, p := range noisePhrases {
		if lower == p || lower == p+"!" || lower == p+"." {
			return true
		}
	}
	return false
}

// Insert embeds text and attaches it as a new leaf, per spec.md §4.6.
// Discard-importance or noise-filtered text is not indexed but is still
// appended to the flat conversation log. Returns the new leaf's id, or 0
// (with ok=false) when the text was not indexed.
func (t *Tree) Insert(ctx context.Context, text string, importance Importance) (id uint64, ok bool, err error) {
	if importance == ImportanceDiscard || (importance != ImportanceCritical && filterNoise(text)) {
		if t.store != nil {
			_ = t.store.AppendConversationLog(ctx, "memory", text, time.Now())
		}
		return 0, false, nil
	}

	embedding, err := t.embedder.Embed(ctx, text)
	if err != nil {
		return 0, false, fmt.Errorf("memtree: embed: %w", err)
	}
	embedding = l2Normalize(embedding)

	t.mu.Lock()
	defer t.mu.Unlock()

	parentID := t.descend(0, embedding)

	leafID, err := t.allocateID(ctx)
	if err != nil {
		return 0, false, err
	}
	leaf := Node{
		ID:         leafID,
		ParentID:   &parentID,
		Text:       text,
		Embedding:  embedding,
		Level:      t.nodes[parentID].Level + 1,
		Importance: importance,
		CreatedAt:  time.Now(),
	}
	t.nodes[leafID] = &leaf
	t.children[parentID] = append(t.children[parentID], leafID)

	ancestors := t.recomputeAncestors(parentID)

	if t.store != nil {
		if err := t.store.InsertPath(ctx, ancestors, leaf); err != nil {
			return 0, false, fmt.Errorf("memtree: persist: %w", err)
		}
		_ = t.store.AppendConversationLog(ctx, "memory", text, leaf.CreatedAt)
	}

	return leafID, true, nil
}

func (t *Tree) allocateID(ctx context.Context) (uint64, error) {
	if t.store != nil {
		return t.store.NextID(ctx)
	}
	var max uint64
	for id := range t.nodes {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// descend walks from startID choosing, at every internal node, the child
// whose embedding has maximum cosine similarity with e, stopping at a leaf
// or once the branching factor limit is hit — spec.md §4.6 Insert.
func (t *Tree) descend(startID uint64, e []float32) uint64 {
	current := startID
	for {
		kids := t.children[current]
		if len(kids) == 0 {
			return current
		}
		// A node whose children are all leaves, or that has hit the
		// branching-factor limit, is the insertion point: attach the new
		// leaf here as an additional sibling rather than descending
		// further.
		if isLeafSet(t, kids) || len(kids) >= MaxBranchingFactor {
			return current
		}

		best := kids[0]
		bestScore := float32(-2)
		for _, kid := range kids {
			score := cosineSimilarity(t.nodes[kid].Embedding, e)
			if score > bestScore {
				bestScore = score
				best = kid
			}
		}
		current = best
	}
}

// isLeafSet reports whether every id in kids is a leaf (has no children of
// its own) — used to decide whether "current" is itself the insertion
// point (all-leaf children) or an internal fan-out we should descend into.
func isLeafSet(t *Tree, kids []uint64) bool {
	for _, k := range kids {
		if len(t.children[k]) > 0 {
			return false
		}
	}
	return true
}

// recomputeAncestors walks from nodeID up to the root, recomputing each
// ancestor's embedding as the arithmetic mean of its children's embeddings,
// and returns the updated ancestor chain root-first (for InsertPath's
// ordering requirement).
func (t *Tree) recomputeAncestors(nodeID uint64) []Node {
	var chain []Node
	current := nodeID
	for {
		node := t.nodes[current]
		kids := t.children[current]
		if len(kids) > 0 {
			node.Embedding = centroid(t.nodes, kids, t.dimension)
		}
		chain = append(chain, *node)
		if node.ParentID == nil {
			break
		}
		current = *node.ParentID
	}
	// Reverse to root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func centroid(nodes map[uint64]*Node, ids []uint64, dim int) []float32 {
	sum := make([]float32, dim)
	count := 0
	for _, id := range ids {
		e := nodes[id].Embedding
		if len(e) != dim {
			continue
		}
		for i, v := range e {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return sum
	}
	for i := range sum {
		sum[i] /= float32(count)
	}
	return sum
}

// RetrievedMemory is one scored result from Retrieve.
type RetrievedMemory struct {
	Node  Node
	Score float32
}

// Retrieve embeds query, descends the most-similar subtree at each level,
// gathers candidate leaves within it, scores each by
// cosine(e_leaf, e_query) * importanceBoost(leaf), and returns the top-k —
// spec.md §4.6.
func (t *Tree) Retrieve(ctx context.Context, query string, k int) ([]RetrievedMemory, error) {
	if k <= 0 {
		return nil, nil
	}
	qe, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memtree: embed query: %w", err)
	}
	qe = l2Normalize(qe)

	t.mu.RLock()
	defer t.mu.RUnlock()

	subtreeRoot := t.descendToSubtree(0, qe)
	var candidates []RetrievedMemory
	t.collectLeaves(subtreeRoot, func(n *Node) {
		if n.Importance == ImportanceDiscard {
			return
		}
		score := cosineSimilarity(n.Embedding, qe) * importanceBoost(n.Importance)
		candidates = append(candidates, RetrievedMemory{Node: *n, Score: score})
	})

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// descendToSubtree selects, at each internal level, the child with the
// highest cosine similarity to qe, stopping once it reaches a node whose
// children are leaves (the candidate-gathering subtree root).
func (t *Tree) descendToSubtree(startID uint64, qe []float32) uint64 {
	current := startID
	for {
		kids := t.children[current]
		if len(kids) == 0 {
			return current
		}
		if isLeafSet(t, kids) {
			return current
		}
		best := kids[0]
		bestScore := float32(-2)
		for _, kid := range kids {
			score := cosineSimilarity(t.nodes[kid].Embedding, qe)
			if score > bestScore {
				bestScore = score
				best = kid
			}
		}
		current = best
	}
}

func (t *Tree) collectLeaves(id uint64, visit func(*Node)) {
	kids := t.children[id]
	if len(kids) == 0 {
		if id != 0 {
			visit(t.nodes[id])
		}
		return
	}
	for _, kid := range kids {
		t.collectLeaves(kid, visit)
	}
}

// ClassifyImportance applies the rule heuristics of spec.md §4.6: explicit
// user-tagged memories (via the create_memory tool) are Critical; text
// matching "decision"/"never"/"must", file paths, or code fences is High;
// everything else is Normal.
func ClassifyImportance(text string, explicitlyTagged bool) Importance {
	if explicitlyTagged {
		return ImportanceCritical
	}
	lower := strings.ToLower(text)
	highMarkers := []string{"decision", "never", "must", "always use", "```"}
	for _, m := range highMarkers {
		if strings.Contains(lower, m) {
			return ImportanceHigh
		}
	}
	if looksLikeFilePath(text) {
		return ImportanceHigh
	}
	return ImportanceNormal
}

func looksLikeFilePath(text string) bool {
	for _, tok := range strings.Fields(text) {
		tok = strings.Trim(tok, ".,;:()[]{}\"'")
		if strings.Contains(tok, "/") && strings.Contains(tok, ".") {
			return true
		}
	}
	return false
}

// NormalizeForIndexing strips code fences and caps prose at the first
// sentence boundary before 300 chars, per spec.md §4.6.
func NormalizeForIndexing(text string) string {
	text = stripCodeFences(text)
	return capAtSentence(text, 300)
}

func stripCodeFences(text string) string {
	var b strings.Builder
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func capAtSentence(text string, maxChars int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxChars {
		return trimmed
	}
	window := trimmed[:maxChars]
	if idx := strings.LastIndexAny(window, ".!?"); idx > 0 {
		return strings.TrimSpace(window[:idx+1])
	}
	return strings.TrimSpace(window)
}

// NewLeafID generates a uuid-tagged correlation id for external callers
// (e.g. the create_memory tool) that need to reference a pending insert
// before the store assigns its numeric node id.
func NewLeafID() string {
	return uuid.NewString()
}
