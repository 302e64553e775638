// Package engine assembles C1-C11 into the single owning value spec.md §9
// calls for ("model a single Engine value that owns the graph, the ANN
// handle, the parameter struct, and the writer lock"), grounded on the
// teacher's pkg/sqvect.DB facade (Config/DefaultConfig/Open), configured
// through a plain field struct rather than functional options.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GonzaloDeLaFuente3/pcgraph/internal/embedder"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/fragment"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/graphstore"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/keywords"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/logging"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/metrics"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/model"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/pcgerrors"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/propagate"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/queryanalyzer"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/querytree"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/selector"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/updater"
	"github.com/GonzaloDeLaFuente3/pcgraph/internal/vectorindex"
)

// Config configures a new Engine, mirroring the teacher's Config/
// DefaultConfig(path) pattern.
type Config struct {
	DataDir   string // directory holding graph.bin, vectors.db, conversaciones.json
	Embedder  embedder.Embedder
	Analyzer  queryanalyzer.Analyzer
	Logger    logging.Logger
	Metrics   *metrics.Recorder
	Params    model.Parameters
}

// DefaultConfig returns a Config with the spec-mandated default parameters,
// a dependency-free hash embedder, the deterministic rule-based analyzer,
// a nop logger, and a nop metrics recorder.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:  dataDir,
		Embedder: embedder.NewHash(embedder.DefaultDim),
		Analyzer: queryanalyzer.Default,
		Logger:   logging.NopLogger(),
		Metrics:  metrics.Noop(),
		Params:   model.DefaultParameters(),
	}
}

// Engine owns the graph, the ANN index, the parameter struct and the
// writer lock — the single value spec.md §9 calls for.
type Engine struct {
	mu sync.RWMutex // guards params and the conversation side-map

	dataDir  string
	graph    *graphstore.Store
	index    *vectorindex.Index
	updater  *updater.Updater
	embedder embedder.Embedder
	analyzer queryanalyzer.Analyzer
	rec      *metrics.Recorder
	log      logging.Logger

	params model.Parameters

	// conversations is the open-ended side-map keyed by conversation_id,
	// per spec.md §9's "loose metadata: dict... can be a side-map".
	conversations map[string]*model.Conversation
	// convKey maps a normalized (title, body) pair to the conversation_id
	// that first ingested it, backing S1's duplicate-conversation detection.
	convKey map[string]string
}

// Open creates or attaches to an Engine backed by cfg.DataDir.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, pcgerrors.Wrap("engine.Open", fmt.Errorf("data dir required"))
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embedder.NewHash(embedder.DefaultDim)
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = queryanalyzer.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Noop()
	}
	if cfg.Params == (model.Parameters{}) {
		cfg.Params = model.DefaultParameters()
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, pcgerrors.Wrap("engine.Open", fmt.Errorf("%w: %v", pcgerrors.ErrInvalidConfig, err))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, pcgerrors.Wrap("engine.Open", err)
	}

	graphPath := filepath.Join(cfg.DataDir, "graph.bin")
	vectorPath := filepath.Join(cfg.DataDir, "vectors.db")
	convPath := filepath.Join(cfg.DataDir, "conversaciones.json")

	g := graphstore.New(cfg.Logger)
	if _, err := os.Stat(graphPath); err == nil {
		if err := g.Load(graphPath); err != nil {
			cfg.Logger.Warn("graph snapshot recovery incomplete, recompute_all is recommended", "error", err)
		}
	}

	idx, err := vectorindex.Open(ctx, vectorPath, cfg.Embedder.Dim(), cfg.Logger)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.Open", err)
	}

	e := &Engine{
		dataDir:       cfg.DataDir,
		graph:         g,
		index:         idx,
		updater:       updater.New(g, idx, cfg.Logger),
		embedder:      cfg.Embedder,
		analyzer:      cfg.Analyzer,
		rec:           cfg.Metrics,
		log:           cfg.Logger,
		params:        cfg.Params,
		conversations: make(map[string]*model.Conversation),
		convKey:       make(map[string]string),
	}
	if err := e.loadConversations(convPath); err != nil {
		cfg.Logger.Warn("conversation table recovery failed, starting empty", "error", err)
	}
	return e, nil
}

// Close releases the underlying vector index handle.
func (e *Engine) Close() error {
	return e.index.Close()
}

// Params returns a copy of the engine's current parameters.
func (e *Engine) Params() model.Parameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// Configure validates and applies new parameters. A change to TauSim
// requires a full edge recomputation per spec.md §3's "removing or
// changing τ_sim requires a full edge recomputation" and SPEC_FULL.md's
// "changing τ_sim through the engine's configuration entry point triggers
// recompute_all() synchronously before returning".
func (e *Engine) Configure(ctx context.Context, p model.Parameters) error {
	if err := p.Validate(); err != nil {
		return pcgerrors.Wrap("engine.Configure", fmt.Errorf("%w: %v", pcgerrors.ErrInvalidConfig, err))
	}

	e.mu.Lock()
	tauChanged := p.TauSim != e.params.TauSim
	e.params = p
	e.mu.Unlock()

	if tauChanged {
		if err := e.RecomputeAll(ctx, nil); err != nil {
			return pcgerrors.Wrap("engine.Configure", err)
		}
	}
	return nil
}

// IngestResult is the response to a single conversation ingest call.
type IngestResult struct {
	ConversationID  string
	Duplicate       bool
	TotalFragments  int
	NodesAdded      int
	EdgesAdded      int
	DuplicateFrags  int
}

// IngestConversation fragments (title, body), embeds and indexes every
// fragment, computes its edges, and persists the graph snapshot plus the
// conversation table — spec.md's ingest data-flow end to end.
func (e *Engine) IngestConversation(ctx context.Context, title, body string, fecha *time.Time, participants []string, metadata map[string]string) (*IngestResult, error) {
	start := time.Now()
	if body == "" {
		return nil, pcgerrors.Wrap("engine.IngestConversation", pcgerrors.ErrEmptyInput)
	}

	key := normalizeConvKey(title, body)
	e.mu.Lock()
	if existingID, ok := e.convKey[key]; ok {
		e.mu.Unlock()
		return &IngestResult{ConversationID: existingID, Duplicate: true}, nil
	}
	e.mu.Unlock()

	inherited := model.ContextGeneral
	if fecha == nil {
		inherited = model.ContextKnowledge
	}

	convID := uuid.NewString()
	frags := fragment.BuildFragments(convID, title, body, fecha, inherited, fragment.DefaultMinWords, fragment.DefaultMaxWords)
	if len(frags) == 0 {
		return nil, pcgerrors.Wrap("engine.IngestConversation", fmt.Errorf("%w: no fragments produced", pcgerrors.ErrEmptyInput))
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.IngestConversation", err)
	}

	tauSim := e.Params().TauSim
	stats, err := e.updater.IngestConversation(ctx, frags, vectors, tauSim)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.IngestConversation", err)
	}

	fragmentIDs := make([]string, 0, len(frags))
	for _, f := range frags {
		fragmentIDs = append(fragmentIDs, f.FragmentID)
	}
	conv := &model.Conversation{
		ConversationID: convID,
		Title:          title,
		Fecha:          fecha,
		Participants:   participants,
		Metadata:       metadata,
		FragmentIDs:    fragmentIDs,
		CreatedAt:      time.Now().UTC(),
	}

	e.mu.Lock()
	e.conversations[convID] = conv
	e.convKey[key] = convID
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		return nil, pcgerrors.Wrap("engine.IngestConversation", err)
	}

	e.rec.ObserveIngest(ctx, time.Since(start).Seconds())
	e.rec.AddNodes(ctx, int64(stats.NodesAdded))
	e.rec.AddEdges(ctx, int64(stats.EdgesAdded))

	return &IngestResult{
		ConversationID: convID,
		TotalFragments: len(frags),
		NodesAdded:     stats.NodesAdded,
		EdgesAdded:     stats.EdgesAdded,
		DuplicateFrags: stats.Duplicates,
	}, nil
}

// IngestDocumentFragments ingests a sequence of already-extracted document
// pages (PDF text extraction is an external collaborator's job per spec.md
// §1's Non-goals; the core only ever sees extracted text), tagging each
// resulting fragment as a PDF fragment with its source document and
// position.
func (e *Engine) IngestDocumentFragments(ctx context.Context, conversationID, sourceDocument string, pageTexts []string, fecha *time.Time) (*IngestResult, error) {
	if len(pageTexts) == 0 {
		return nil, pcgerrors.Wrap("engine.IngestDocumentFragments", pcgerrors.ErrEmptyInput)
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	frags := make([]*model.Fragment, 0, len(pageTexts))
	for i, text := range pageTexts {
		if text == "" {
			continue
		}
		frags = append(frags, &model.Fragment{
			FragmentID:     uuid.NewString(),
			ConversationID: conversationID,
			Title:          fmt.Sprintf("%s p.%d", sourceDocument, i+1),
			Text:           text,
			Keywords:       keywords.Extract(text),
			Timestamp:      fecha,
			ContextType:    model.ContextDocument,
			PositionInConv: i,
			TotalInConv:    len(pageTexts),
			CreatedAt:      time.Now().UTC(),
			IsPDFFragment:  true,
			SourceDocument: sourceDocument,
			PositionInDoc:  i,
		})
	}
	if len(frags) == 0 {
		return nil, pcgerrors.Wrap("engine.IngestDocumentFragments", pcgerrors.ErrEmptyInput)
	}

	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.IngestDocumentFragments", err)
	}

	stats, err := e.updater.IngestConversation(ctx, frags, vectors, e.Params().TauSim)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.IngestDocumentFragments", err)
	}
	if err := e.persist(ctx); err != nil {
		return nil, pcgerrors.Wrap("engine.IngestDocumentFragments", err)
	}

	return &IngestResult{
		ConversationID: conversationID,
		TotalFragments: len(frags),
		NodesAdded:     stats.NodesAdded,
		EdgesAdded:     stats.EdgesAdded,
		DuplicateFrags: stats.Duplicates,
	}, nil
}

// QueryResult is the engine's answer to a question, without propagation.
type QueryResult struct {
	Plan        *model.Plan
	Candidates  []selector.Candidate
	FilteredOut int
	Tree        querytree.Tree
}

// Ask classifies the question (C8), selects candidates (C9) and builds the
// scored query tree (C11) — the query data-flow without propagation,
// evaluated against the wall clock.
func (e *Engine) Ask(ctx context.Context, question string, k int) (*QueryResult, error) {
	return e.AskAt(ctx, question, k, time.Now().UTC())
}

// AskAt is Ask with an explicit moment of query, so callers (and tests)
// can pin "now" instead of depending on the wall clock.
func (e *Engine) AskAt(ctx context.Context, question string, k int, now time.Time) (*QueryResult, error) {
	start := time.Now()
	if k <= 0 {
		k = e.Params().K
	}

	plan, err := e.analyzer.Analyze(question, now, e.Params().AlphaTemp)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.Ask", err)
	}

	qVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.Ask", err)
	}
	sel, err := selector.Select(e.graph, e.index, qVec, plan, k)
	if err != nil {
		return nil, pcgerrors.Wrap("engine.Ask", err)
	}

	qKeywords := keywords.Extract(question)
	sems := make([]querytree.CandidateSemantics, len(sel.Candidates))
	for i, c := range sel.Candidates {
		sems[i] = querytree.CandidateSemantics{FragmentID: c.FragmentID, Sem: c.Similarity}
	}
	tree := querytree.Build(e.graph, question, qKeywords, sems, plan.Intent, e.Params().AlphaTemp, now)

	e.rec.ObserveQuery(ctx, time.Since(start).Seconds())
	return &QueryResult{Plan: plan, Candidates: sel.Candidates, FilteredOut: sel.FilteredOut, Tree: tree}, nil
}

// PropagationResult augments QueryResult with C10's spreading-activation
// output, tracking which contexts were reached directly vs. only through
// propagation (SPEC_FULL.md's "propagation statistics block").
type PropagationResult struct {
	QueryResult
	Activation          map[string]float64
	Depth               map[string]int
	Source              map[string]string
	DirectContexts       []string
	IndirectContexts     []string
	OnlyViaPropagation   []string
	TotalNodesReached    int
}

// AskWithPropagation runs Ask, then expands the candidate set via C10
// seeded from C9's candidates, evaluated against the wall clock.
func (e *Engine) AskWithPropagation(ctx context.Context, question string, k, maxSteps int) (*PropagationResult, error) {
	return e.AskWithPropagationAt(ctx, question, k, maxSteps, time.Now().UTC())
}

// AskWithPropagationAt is AskWithPropagation with an explicit moment of
// query.
func (e *Engine) AskWithPropagationAt(ctx context.Context, question string, k, maxSteps int, now time.Time) (*PropagationResult, error) {
	base, err := e.AskAt(ctx, question, k, now)
	if err != nil {
		return nil, err
	}

	params := e.Params()
	seeds := make([]string, len(base.Candidates))
	direct := make(map[string]struct{}, len(base.Candidates))
	for i, c := range base.Candidates {
		seeds[i] = c.FragmentID
		direct[c.FragmentID] = struct{}{}
	}

	qKeywords := keywords.Extract(question)
	merged := propagate.FromQuery(e.graph, qKeywords, seeds, nil, params.LambdaDecay, params.TauAct, maxSteps, params.ExcludeTemporalEdges)

	var indirect, onlyPropagation []string
	for id := range merged.Activation {
		if _, isDirect := direct[id]; isDirect {
			indirect = append(indirect, id)
		} else {
			onlyPropagation = append(onlyPropagation, id)
		}
	}

	e.rec.ObservePropagationSteps(ctx, int64(maxSteps))

	return &PropagationResult{
		QueryResult:        *base,
		Activation:         merged.Activation,
		Depth:              merged.Depth,
		Source:             merged.Source,
		DirectContexts:     seeds,
		IndirectContexts:   indirect,
		OnlyViaPropagation: onlyPropagation,
		TotalNodesReached:  len(seeds) + len(onlyPropagation),
	}, nil
}

// FragmentsForConversation returns every fragment belonging to
// conversationID, in the order BuildFragments produced them.
func (e *Engine) FragmentsForConversation(conversationID string) []*model.Fragment {
	e.mu.RLock()
	conv, ok := e.conversations[conversationID]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	out := make([]*model.Fragment, 0, len(conv.FragmentIDs))
	for _, id := range conv.FragmentIDs {
		if f, ok := e.graph.Node(id); ok {
			out = append(out, f)
		}
	}
	return out
}

// Conversation returns the conversation record for id, if known.
func (e *Engine) Conversation(id string) (*model.Conversation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conv, ok := e.conversations[id]
	return conv, ok
}

// ConversationCount returns the number of distinct conversations ingested.
func (e *Engine) ConversationCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conversations)
}

// Stats summarizes the graph's current size, used by the CLI's `stats`
// subcommand and by S5-style tests tracking edge counts across ingests.
type Stats struct {
	NodeCount        int
	EdgeCount        int
	ConversationCount int
}

// Stats returns the current node/edge/conversation counts.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	convCount := len(e.conversations)
	e.mu.RUnlock()
	return Stats{
		NodeCount:         e.graph.NodeCount(),
		EdgeCount:         e.graph.EdgeCount(),
		ConversationCount: convCount,
	}
}

// RecomputeAll clears and rebuilds every edge in the graph from scratch
// (C7's recompute_all), then persists the resulting snapshot.
func (e *Engine) RecomputeAll(ctx context.Context, progress func(done, total int)) error {
	if err := e.updater.RecomputeAll(ctx, e.Params().TauSim, progress); err != nil {
		return pcgerrors.Wrap("engine.RecomputeAll", err)
	}
	return e.persist(ctx)
}

func (e *Engine) persist(ctx context.Context) error {
	if err := e.graph.Save(filepath.Join(e.dataDir, "graph.bin")); err != nil {
		return err
	}
	return e.saveConversations(filepath.Join(e.dataDir, "conversaciones.json"))
}

func (e *Engine) saveConversations(path string) error {
	e.mu.RLock()
	out := make(map[string]*model.Conversation, len(e.conversations))
	for k, v := range e.conversations {
		out[k] = v
	}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (e *Engine) loadConversations(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var table map[string]*model.Conversation
	if err := json.Unmarshal(data, &table); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, conv := range table {
		e.conversations[id] = conv
		e.convKey[normalizeConvKey(conv.Title, bodyOf(conv))] = id
	}
	return nil
}

// bodyOf has no reliable source for the original body text once only the
// conversation record (not its fragments' concatenated text) is persisted,
// so a conversation restored from disk is keyed on its title and an empty
// body. IngestConversation rejects an empty body, so no later ingest
// produces such a key: the conversation-level duplicate check does not match
// conversations restored after a process restart. Within a single process
// lifetime IngestConversation always keys on the full (title, body) pair.
func bodyOf(conv *model.Conversation) string {
	return ""
}

func normalizeConvKey(title, body string) string {
	return title + "\x00" + body
}
