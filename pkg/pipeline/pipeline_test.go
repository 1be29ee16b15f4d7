package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"bloomgraph/pkg/batch"
	"bloomgraph/pkg/common"
	"bloomgraph/pkg/store"
)

// memStore is an in-memory PipelineStorage for exercising pipeline stages
// without a database.
type memStore struct {
	runs          map[string]common.PipelineRun
	origins       map[string][]common.Origin
	units         map[string][]common.KnowledgeUnit
	jobs          map[string]common.BatchJob
	groups        map[string][]common.ComparisonGroup
	evaluations   map[string][]common.DifficultyEvaluation
	relationships map[string][]common.Relationship
	entities      map[string][]common.GraphEntity
	communities   map[string][]common.GraphCommunity
	reports       map[string][]common.GraphCommunityReport
	graphRels     map[string][]common.GraphRelationship
}

func newMemStore() *memStore {
	return &memStore{
		runs:          make(map[string]common.PipelineRun),
		origins:       make(map[string][]common.Origin),
		units:         make(map[string][]common.KnowledgeUnit),
		jobs:          make(map[string]common.BatchJob),
		groups:        make(map[string][]common.ComparisonGroup),
		evaluations:   make(map[string][]common.DifficultyEvaluation),
		relationships: make(map[string][]common.Relationship),
		entities:      make(map[string][]common.GraphEntity),
		communities:   make(map[string][]common.GraphCommunity),
		reports:       make(map[string][]common.GraphCommunityReport),
		graphRels:     make(map[string][]common.GraphRelationship),
	}
}

func (m *memStore) CreateRun(_ context.Context, run common.PipelineRun) error {
	m.runs[run.RunID] = run
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (common.PipelineRun, error) {
	run, ok := m.runs[runID]
	if !ok {
		return common.PipelineRun{}, store.ErrNotFound
	}
	return run, nil
}

func (m *memStore) ListRuns(_ context.Context) ([]common.PipelineRun, error) {
	runs := make([]common.PipelineRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	return runs, nil
}

func (m *memStore) UpdateRunStatus(_ context.Context, runID, status string) error {
	run, ok := m.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	m.runs[runID] = run
	return nil
}

func (m *memStore) SaveGraphSnapshot(
	_ context.Context,
	runID string,
	entities []common.GraphEntity,
	communities []common.GraphCommunity,
	reports []common.GraphCommunityReport,
	relationships []common.GraphRelationship,
) error {
	m.entities[runID] = entities
	m.communities[runID] = communities
	m.reports[runID] = reports
	m.graphRels[runID] = relationships
	return nil
}

func (m *memStore) GetGraphEntities(_ context.Context, runID string) ([]common.GraphEntity, error) {
	return m.entities[runID], nil
}

func (m *memStore) GetGraphCommunities(_ context.Context, runID string) ([]common.GraphCommunity, error) {
	return m.communities[runID], nil
}

func (m *memStore) GetGraphCommunityReports(_ context.Context, runID string) ([]common.GraphCommunityReport, error) {
	return m.reports[runID], nil
}

func (m *memStore) GetGraphRelationships(_ context.Context, runID string) ([]common.GraphRelationship, error) {
	return m.graphRels[runID], nil
}

func (m *memStore) SaveOrigins(_ context.Context, runID string, origins []common.Origin) error {
	m.origins[runID] = append(m.origins[runID], origins...)
	return nil
}

func (m *memStore) GetOrigins(_ context.Context, runID string) ([]common.Origin, error) {
	return m.origins[runID], nil
}

func (m *memStore) SaveKnowledgeUnits(_ context.Context, runID string, units []common.KnowledgeUnit) error {
	m.units[runID] = append(m.units[runID], units...)
	return nil
}

func (m *memStore) ListKnowledgeUnits(_ context.Context, runID string, filter store.UnitFilter) ([]common.KnowledgeUnit, error) {
	var out []common.KnowledgeUnit
	for _, u := range m.units[runID] {
		if filter.OriginID != "" && u.OriginID != filter.OriginID {
			continue
		}
		if filter.BloomLevel != "" && u.BloomLevel != filter.BloomLevel {
			continue
		}
		if filter.EvaluatedOnly && u.DifficultyScore == nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) SetUnitDifficulties(_ context.Context, runID string, units []common.KnowledgeUnit) error {
	byID := make(map[string]common.KnowledgeUnit, len(units))
	for _, u := range units {
		byID[u.UCID] = u
	}
	existing := m.units[runID]
	for i, u := range existing {
		if updated, ok := byID[u.UCID]; ok {
			existing[i].DifficultyScore = updated.DifficultyScore
			existing[i].DifficultyJustification = updated.DifficultyJustification
			existing[i].EvaluationCount = updated.EvaluationCount
		}
	}
	return nil
}

func (m *memStore) CreateBatchJob(_ context.Context, job common.BatchJob) error {
	m.jobs[job.BatchID] = job
	return nil
}

func (m *memStore) UpdateBatchJobStatus(_ context.Context, batchID, status string) error {
	job, ok := m.jobs[batchID]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	m.jobs[batchID] = job
	return nil
}

func (m *memStore) GetBatchJob(_ context.Context, batchID string) (common.BatchJob, error) {
	job, ok := m.jobs[batchID]
	if !ok {
		return common.BatchJob{}, store.ErrNotFound
	}
	return job, nil
}

func (m *memStore) ListBatchJobs(_ context.Context, runID string) ([]common.BatchJob, error) {
	var out []common.BatchJob
	for _, j := range m.jobs {
		if j.PipelineRunID == runID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memStore) SaveComparisonGroups(_ context.Context, runID string, groups []common.ComparisonGroup) error {
	m.groups[runID] = append(m.groups[runID], groups...)
	return nil
}

func (m *memStore) GetComparisonGroups(_ context.Context, runID string) ([]common.ComparisonGroup, error) {
	return m.groups[runID], nil
}

func (m *memStore) SaveEvaluations(_ context.Context, runID string, evaluations []common.DifficultyEvaluation) error {
	m.evaluations[runID] = append(m.evaluations[runID], evaluations...)
	return nil
}

func (m *memStore) GetEvaluations(_ context.Context, runID string) ([]common.DifficultyEvaluation, error) {
	return m.evaluations[runID], nil
}

func (m *memStore) SaveRelationships(_ context.Context, runID string, relationships []common.Relationship) error {
	m.relationships[runID] = append(m.relationships[runID], relationships...)
	return nil
}

func (m *memStore) ListRelationships(_ context.Context, runID string, filter store.RelationshipFilter) ([]common.Relationship, error) {
	var out []common.Relationship
	for _, r := range m.relationships[runID] {
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		if filter.SourceID != "" && r.SourceUCID != filter.SourceID {
			continue
		}
		if filter.TargetID != "" && r.TargetUCID != filter.TargetID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// fakeLLM is an in-memory batch.Client. Tests inject output files keyed by
// file id and a job status per batch id.
type fakeLLM struct {
	uploads  map[string][]byte
	files    map[string][]byte
	statuses map[string]batch.JobStatus
	nextID   int
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		uploads:  make(map[string][]byte),
		files:    make(map[string][]byte),
		statuses: make(map[string]batch.JobStatus),
	}
}

func (f *fakeLLM) UploadBatchFile(_ context.Context, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	f.nextID++
	fileID := fmt.Sprintf("file-%d", f.nextID)
	f.uploads[fileID] = data
	return fileID, nil
}

func (f *fakeLLM) CreateBatchJob(_ context.Context, inputFileID, _ string, _ map[string]string) (string, error) {
	if _, ok := f.uploads[inputFileID]; !ok {
		return "", fmt.Errorf("unknown input file %s", inputFileID)
	}
	f.nextID++
	batchID := fmt.Sprintf("batch-%d", f.nextID)
	f.statuses[batchID] = batch.JobStatus{Status: batch.StatusInProgress}
	return batchID, nil
}

func (f *fakeLLM) GetBatchStatus(_ context.Context, batchID string) (batch.JobStatus, error) {
	status, ok := f.statuses[batchID]
	if !ok {
		return batch.JobStatus{}, fmt.Errorf("unknown batch %s", batchID)
	}
	return status, nil
}

func (f *fakeLLM) ReadFile(_ context.Context, fileID string) ([]byte, error) {
	content, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("unknown file %s", fileID)
	}
	return content, nil
}

// completeWithResponses marks the batch completed and wires an output file
// built by calling respond with each uploaded request's custom_id.
func (f *fakeLLM) completeWithResponses(t *testing.T, batchID, inputFileID string, respond func(customID string) string) {
	t.Helper()

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(f.uploads[inputFileID]))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var req struct {
			CustomID string `json:"custom_id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			t.Fatalf("uploaded file contains an invalid line: %v", err)
		}

		line := map[string]any{
			"custom_id": req.CustomID,
			"response": map[string]any{
				"status_code": 200,
				"body": map[string]any{
					"choices": []map[string]any{
						{"message": map[string]any{"content": respond(req.CustomID)}},
					},
				},
			},
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			t.Fatalf("failed to build output line: %v", err)
		}
		out.Write(encoded)
		out.WriteByte('\n')
	}

	f.nextID++
	outputFileID := fmt.Sprintf("file-%d", f.nextID)
	f.files[outputFileID] = out.Bytes()
	f.statuses[batchID] = batch.JobStatus{Status: batch.StatusCompleted, OutputFileID: outputFileID}
}

func testConfig() Config {
	return Config{
		Model:                 "gpt-4o-mini",
		GenerationTemperature: 0.2,
		DifficultyTemperature: 0.1,
		DifficultyBatchSize:   2,
		MinEvaluationsPerUC:   1,
		MaxAscentLevels:       1,
		SchedulerSeed:         7,
	}
}

func seedOrigins(t *testing.T, s *memStore, runID string) {
	t.Helper()
	err := s.SaveOrigins(context.Background(), runID, []common.Origin{
		{OriginID: "o1", OriginType: common.OriginTypeEntity, Title: "Alpha", Context: "about alpha", EntityType: "technology", Degree: 5},
		{OriginID: "o2", OriginType: common.OriginTypeEntity, Title: "Beta", Context: "about beta", EntityType: "technology", Degree: 3},
	})
	if err != nil {
		t.Fatalf("failed to seed origins: %v", err)
	}
}

func TestGenerationBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	llm := newFakeLLM()
	p := New(s, llm, testConfig())

	const runID = "run-gen"
	seedOrigins(t, s, runID)

	batchID, err := p.SubmitGenerationBatch(ctx, runID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected a batch id")
	}

	job, err := s.GetBatchJob(ctx, batchID)
	if err != nil {
		t.Fatalf("batch job was not recorded: %v", err)
	}
	if job.Kind != common.BatchKindGeneration || job.Status != batch.StatusValidating {
		t.Errorf("unexpected job record: %+v", job)
	}
	if input := string(llm.uploads[job.InputFileID]); !strings.Contains(input, `"json_schema"`) {
		t.Error("requests must carry a structured-output response format")
	}

	llm.completeWithResponses(t, batchID, job.InputFileID, func(string) string {
		var units []string
		for _, level := range common.BloomOrder {
			units = append(units, fmt.Sprintf(`{"bloom_level": %q, "uc_text": "unit for %s"}`, level, level))
		}
		return fmt.Sprintf(`{"generated_units": [%s]}`, strings.Join(units, ","))
	})

	if err := p.ProcessGenerationBatch(ctx, runID, batchID); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	units, _ := s.ListKnowledgeUnits(ctx, runID, store.UnitFilter{})
	if len(units) != 2*len(common.BloomOrder) {
		t.Fatalf("expected %d units, got %d", 2*len(common.BloomOrder), len(units))
	}
	perOrigin := map[string]int{}
	for _, u := range units {
		perOrigin[u.OriginID]++
		if u.UCID == "" || u.PipelineRunID != runID {
			t.Errorf("unit missing identifiers: %+v", u)
		}
	}
	if perOrigin["o1"] != len(common.BloomOrder) || perOrigin["o2"] != len(common.BloomOrder) {
		t.Errorf("units are not distributed per origin: %v", perOrigin)
	}

	job, _ = s.GetBatchJob(ctx, batchID)
	if job.Status != batch.StatusCompleted {
		t.Errorf("expected job to be completed, got %q", job.Status)
	}
}

func TestProcessGenerationBatchFailsWhenAllLinesUnusable(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	llm := newFakeLLM()
	p := New(s, llm, testConfig())

	const runID = "run-gen-bad"
	seedOrigins(t, s, runID)

	batchID, err := p.SubmitGenerationBatch(ctx, runID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	job, _ := s.GetBatchJob(ctx, batchID)
	llm.completeWithResponses(t, batchID, job.InputFileID, func(string) string {
		return `{"generated_units": [{"bloom_level": "NotALevel", "uc_text": "x"}]}`
	})

	if err := p.ProcessGenerationBatch(ctx, runID, batchID); err == nil {
		t.Fatal("expected an error when no usable units were produced")
	}
}

func TestDifficultyBatchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	llm := newFakeLLM()
	p := New(s, llm, testConfig())

	const runID = "run-diff"
	seedOrigins(t, s, runID)

	// Both origins have Remember and Understand units; only o1 has Apply, so
	// that slice stays incomplete and must be skipped.
	var units []common.KnowledgeUnit
	for _, originID := range []string{"o1", "o2"} {
		for _, level := range []string{common.BloomRemember, common.BloomUnderstand} {
			units = append(units, common.KnowledgeUnit{
				UCID:       fmt.Sprintf("u-%s-%s", originID, level),
				OriginID:   originID,
				BloomLevel: level,
				Text:       "text",
			})
		}
	}
	units = append(units, common.KnowledgeUnit{
		UCID: "u-o1-extra", OriginID: "o1", BloomLevel: common.BloomApply, Text: "text",
	})
	if err := s.SaveKnowledgeUnits(ctx, runID, units); err != nil {
		t.Fatal(err)
	}

	batchID, err := p.SubmitDifficultyBatch(ctx, runID)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected a batch id")
	}

	groups, _ := s.GetComparisonGroups(ctx, runID)
	if len(groups) != 2 {
		t.Fatalf("expected 2 comparison groups (Remember and Understand), got %d", len(groups))
	}
	for _, g := range groups {
		if len(g.OriginIDs) != 2 || g.SeedOriginID == "" || g.CoherenceLevel == "" {
			t.Errorf("incomplete group record: %+v", g)
		}
	}

	job, _ := s.GetBatchJob(ctx, batchID)
	if job.Kind != common.BatchKindDifficulty {
		t.Errorf("expected a difficulty job, got %q", job.Kind)
	}

	llm.completeWithResponses(t, batchID, job.InputFileID, func(customID string) string {
		meta, err := batch.DecodeCustomID(customID)
		if err != nil {
			t.Fatalf("request custom_id does not decode: %v", err)
		}
		return fmt.Sprintf(`{"difficulty_assessments": [
			{"uc_id": "u-o1-%[1]s", "difficulty_score": 40, "justification": "seed"},
			{"uc_id": "u-o2-%[1]s", "difficulty_score": 60, "justification": "peer"}
		]}`, meta.BloomLevel)
	})

	if err := p.ProcessDifficultyBatch(ctx, runID, batchID); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	evaluations, _ := s.GetEvaluations(ctx, runID)
	if len(evaluations) != 4 {
		t.Fatalf("expected 4 evaluations, got %d", len(evaluations))
	}
	for _, e := range evaluations {
		if e.ComparisonGroupID == "" || e.PipelineRunID != runID {
			t.Errorf("evaluation missing identifiers: %+v", e)
		}
		if e.DifficultyScore != 40 && e.DifficultyScore != 60 {
			t.Errorf("unexpected score %d", e.DifficultyScore)
		}
	}
}

func TestFinalizeOutputsEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	p := New(s, newFakeLLM(), testConfig())

	const runID = "run-final"
	if err := s.CreateRun(ctx, common.PipelineRun{RunID: runID, Status: common.RunStatusRunning}); err != nil {
		t.Fatal(err)
	}
	err := s.SaveKnowledgeUnits(ctx, runID, []common.KnowledgeUnit{
		{UCID: "uc-1", OriginID: "o1", BloomLevel: common.BloomRemember, Text: "a"},
		{UCID: "uc-2", OriginID: "o2", BloomLevel: common.BloomRemember, Text: "b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.SaveEvaluations(ctx, runID, []common.DifficultyEvaluation{
		{UCID: "uc-1", DifficultyScore: 30, Justification: "easy"},
		{UCID: "uc-1", DifficultyScore: 50, Justification: "medium"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.FinalizeOutputs(ctx, runID); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	run, _ := s.GetRun(ctx, runID)
	if run.Status != common.RunStatusSuccess {
		t.Errorf("expected run status success, got %q", run.Status)
	}

	units, _ := s.ListKnowledgeUnits(ctx, runID, store.UnitFilter{})
	for _, u := range units {
		switch u.UCID {
		case "uc-1":
			if u.DifficultyScore == nil || *u.DifficultyScore != 40 || u.EvaluationCount != 2 {
				t.Errorf("uc-1 not aggregated: %+v", u)
			}
		case "uc-2":
			if u.DifficultyScore != nil || u.DifficultyJustification != "Not evaluated" {
				t.Errorf("uc-2 should be unevaluated: %+v", u)
			}
		}
	}

	// A second call is a no-op on an already successful run.
	if err := p.FinalizeOutputs(ctx, runID); err != nil {
		t.Errorf("finalize is not idempotent: %v", err)
	}
}

func TestFinalizeOutputsMarksRunFinalizeFailed(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	p := New(s, newFakeLLM(), testConfig())

	const runID = "run-final-bad"
	if err := s.CreateRun(ctx, common.PipelineRun{RunID: runID, Status: common.RunStatusRunning}); err != nil {
		t.Fatal(err)
	}

	if err := p.FinalizeOutputs(ctx, runID); err == nil {
		t.Fatal("expected an error when the run has no units")
	}
	run, _ := s.GetRun(ctx, runID)
	if run.Status != common.RunStatusFinalizeFailed {
		t.Errorf("expected finalize_failed status, got %q", run.Status)
	}
}

func TestDefineRelationshipsEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	p := New(s, newFakeLLM(), testConfig())

	const runID = "run-rels"
	desc := "alpha uses beta"
	err := s.SaveGraphSnapshot(ctx, runID,
		[]common.GraphEntity{{ID: "o1", Title: "Alpha"}, {ID: "o2", Title: "Beta"}},
		nil, nil,
		[]common.GraphRelationship{{Source: "Alpha", Target: "Beta", Weight: 2.0, Description: &desc}},
	)
	if err != nil {
		t.Fatal(err)
	}
	err = s.SaveKnowledgeUnits(ctx, runID, []common.KnowledgeUnit{
		{UCID: "u1r", OriginID: "o1", BloomLevel: common.BloomRemember, Text: "a"},
		{UCID: "u1u", OriginID: "o1", BloomLevel: common.BloomUnderstand, Text: "b"},
		{UCID: "u2r", OriginID: "o2", BloomLevel: common.BloomRemember, Text: "c"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.DefineRelationships(ctx, runID); err != nil {
		t.Fatalf("define failed: %v", err)
	}

	requires, _ := s.ListRelationships(ctx, runID, store.RelationshipFilter{Type: common.RelTypeRequires})
	if len(requires) != 1 || requires[0].SourceUCID != "u1r" || requires[0].TargetUCID != "u1u" {
		t.Errorf("unexpected REQUIRES links: %+v", requires)
	}

	expands, _ := s.ListRelationships(ctx, runID, store.RelationshipFilter{Type: common.RelTypeExpands})
	if len(expands) != 2 {
		t.Fatalf("expected a bidirectional EXPANDS pair, got %d", len(expands))
	}
	for _, r := range expands {
		if r.Weight != 2.0 || r.PipelineRunID != runID {
			t.Errorf("unexpected EXPANDS link: %+v", r)
		}
	}

	// Idempotency: a second call must not duplicate anything.
	if err := p.DefineRelationships(ctx, runID); err != nil {
		t.Fatal(err)
	}
	all, _ := s.ListRelationships(ctx, runID, store.RelationshipFilter{})
	if len(all) != 3 {
		t.Errorf("expected 3 relationships after repeat call, got %d", len(all))
	}
}

func TestPrepareOriginsEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newMemStore()
	p := New(s, newFakeLLM(), testConfig())

	const runID = "run-prep"
	snapshot := GraphSnapshot{
		Entities: []common.GraphEntity{
			{ID: "e1", Title: "Alpha", Type: "technology"},
		},
		Communities: []common.GraphCommunity{
			{ID: "c-root", HumanReadableID: "0", Level: 0, ParentHRID: strPtr("-1"), EntityIDs: []string{"e1"}},
		},
		Reports: []common.GraphCommunityReport{
			{ID: "r1", CommunityHRID: strPtr("0"), Title: "Root", Summary: "sum", Level: 0},
		},
	}

	if err := p.PrepareOrigins(ctx, runID, snapshot); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}

	origins, _ := s.GetOrigins(ctx, runID)
	if len(origins) != 2 {
		t.Fatalf("expected an entity origin and a report origin, got %d", len(origins))
	}

	entities, _ := s.GetGraphEntities(ctx, runID)
	if entities[0].ParentCommunityID == nil || *entities[0].ParentCommunityID != "c-root" {
		t.Errorf("entity parent community was not resolved: %+v", entities[0])
	}

	// Repeat call finds existing origins and leaves the store untouched.
	if err := p.PrepareOrigins(ctx, runID, snapshot); err != nil {
		t.Fatal(err)
	}
	origins, _ = s.GetOrigins(ctx, runID)
	if len(origins) != 2 {
		t.Errorf("prepare is not idempotent, got %d origins", len(origins))
	}
}
