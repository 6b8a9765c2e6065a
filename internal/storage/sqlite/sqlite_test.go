package sqlite_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kensa/internal/health"
	"github.com/ashita-ai/kensa/internal/model"
	"github.com/ashita-ai/kensa/internal/storage"
	"github.com/ashita-ai/kensa/internal/storage/sqlite"
	"github.com/ashita-ai/kensa/internal/testutil"
)

func openDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "kensa.db"), testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRun(site model.Site, forced bool) model.Run {
	now := time.Now().UTC()
	return model.Run{
		ID:             uuid.New(),
		SiteID:         site.ID,
		Domain:         site.Domain,
		Mode:           model.ModeFull,
		IdempotencyKey: model.IdempotencyKey(site.Domain, model.ModeFull, now),
		Forced:         forced,
		CreatedAt:      now,
	}
}

func TestOpen_ReopenSkipsAppliedMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kensa.db")
	db, err := sqlite.Open(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	_, err = db.UpsertSite(context.Background(), "reopen.example.com", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = sqlite.Open(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.GetSiteByDomain(context.Background(), "reopen.example.com")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", db.Backend())
}

func TestUpsertSite(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	a, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)
	b, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	_, err = db.GetSiteByDomain(ctx, "other.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateRun_LiveKeyAndForce(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	site, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)

	first, created, err := db.CreateRun(ctx, newRun(site, false))
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := db.CreateRun(ctx, newRun(site, false))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	forced, created, err := db.CreateRun(ctx, newRun(site, true))
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, forced.Forced)

	reusable, err := db.FindReusableRun(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, forced.ID, reusable.ID, "most recent live run wins")

	require.NoError(t, db.FailRun(ctx, first.ID, "boom", time.Now()))
	again, created, err := db.CreateRun(ctx, newRun(site, false))
	require.NoError(t, err)
	assert.True(t, created, "a failed run frees the key")
	assert.NotEqual(t, first.ID, again.ID)

	failed, err := db.GetRun(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "boom", *failed.FailureReason)
}

func TestFinalizeRun_RoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	site, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)
	run, _, err := db.CreateRun(ctx, newRun(site, false))
	require.NoError(t, err)

	// Findings cannot be written before the run is running.
	assert.ErrorIs(t, db.FinalizeRun(ctx, run, nil, nil, nil), storage.ErrStatusConflict)

	require.NoError(t, db.MarkRunRunning(ctx, run.ID, time.Now()))

	code := "TIMEOUT"
	require.NoError(t, db.InsertWorkerResult(ctx, model.WorkerCallResult{
		ID: uuid.New(), RunID: run.ID, SiteID: site.ID, WorkerKey: "performance", Agent: "performance",
		Status: model.CallTimeout, DurationMS: 30000, ErrorCode: &code, CreatedAt: time.Now(),
	}))
	require.NoError(t, db.InsertWorkerResult(ctx, model.WorkerCallResult{
		ID: uuid.New(), RunID: run.ID, SiteID: site.ID, WorkerKey: "technical", Agent: "technical",
		Status: model.CallSuccess, Payload: json.RawMessage(`{"pagesCrawled":4}`),
		Metrics:   map[string]float64{"tech.pages_crawled": 4},
		Ratings:   map[string]model.Rating{},
		Issues:    []model.PageIssue{{Type: "tech.missing_h1", URL: "https://example.com/a"}},
		CreatedAt: time.Now(),
	}))

	sug := model.Suggestion{
		ID: uuid.New(), RunID: run.ID, SiteID: site.ID, Type: "missing_h1", Severity: model.SeverityMedium,
		Category: model.CategoryTechnical, Title: "Missing H1 Tag", TargetURL: "https://example.com/a",
		Evidence: map[string]any{"technical": map[string]any{"tech.missing_h1": 1.0}}, Fingerprint: "fp",
		SourceWorkers: []string{"technical"}, CreatedAt: time.Now(),
	}
	ticket := model.Ticket{ID: uuid.New(), RunID: run.ID, SuggestionID: sug.ID, Title: sug.Title, Priority: model.PriorityMedium, Owner: model.OwnerDev, Fingerprint: "fp", CreatedAt: time.Now()}

	done := time.Now()
	final := run
	final.Status = model.RunStatusCompleted
	final.SuccessCount, final.FailedCount = 1, 1
	final.SuggestionsGenerated, final.TicketsGenerated = 1, 1
	final.Scores = &model.Scores{Overall: 42.5}
	final.WorkerStatuses = map[string]model.WorkerStatusSummary{"technical": {Status: model.CallSuccess}}
	final.CompletedAt = &done
	require.NoError(t, db.FinalizeRun(ctx, final, []model.Suggestion{sug}, []model.Ticket{ticket}, nil))

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, 42.5, got.Scores.Overall)
	assert.Equal(t, 1, got.FailedCount)
	assert.Empty(t, got.UnavailableSources)
	assert.WithinDuration(t, done, *got.CompletedAt, time.Microsecond)

	results, err := db.ListWorkerResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "performance", results[0].WorkerKey)
	require.NotNil(t, results[0].ErrorCode)
	assert.Equal(t, "TIMEOUT", *results[0].ErrorCode)
	assert.Nil(t, results[0].Payload)
	assert.Equal(t, "https://example.com/a", results[1].Issues[0].URL)

	suggestions, err := db.ListSuggestions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "https://example.com/a", suggestions[0].TargetURL)

	tickets, err := db.ListTickets(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)

	assert.ErrorIs(t, db.FailRun(ctx, run.ID, "late", time.Now()), storage.ErrStatusConflict)
}

func TestLatestSuccessfulResults(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	site, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	insert := func(key string, status model.CallStatus, at time.Time) {
		run, _, err := db.CreateRun(ctx, newRun(site, true))
		require.NoError(t, err)
		require.NoError(t, db.InsertWorkerResult(ctx, model.WorkerCallResult{
			ID: uuid.New(), RunID: run.ID, SiteID: site.ID, WorkerKey: key, Agent: key, Status: status, CreatedAt: at,
		}))
	}
	insert("serp", model.CallSuccess, base)
	insert("serp", model.CallSuccess, base.Add(2*time.Minute))
	insert("serp", model.CallFailed, base.Add(3*time.Minute))
	insert("technical", model.CallSuccess, base.Add(time.Minute))

	latest, err := db.LatestSuccessfulResults(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "serp", latest[0].WorkerKey)
	assert.WithinDuration(t, base.Add(2*time.Minute), latest[0].CreatedAt, time.Microsecond)
	assert.Equal(t, "technical", latest[1].WorkerKey)
}

func TestRecordAgentResult_MatchesStateMachine(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	site, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)

	msg := "TRANSPORT_ERROR"
	want := model.AgentHealthState{SiteID: site.ID, Agent: "search", Health: model.HealthHealthy}
	for i, success := range []bool{false, false, false, false, true, false, true} {
		at := time.Now().UTC().Add(time.Duration(i) * time.Second)
		var errMsg *string
		if !success {
			errMsg = &msg
		}
		want = health.Next(want, success, errMsg, at)
		got, err := db.RecordAgentResult(ctx, site.ID, "search", success, errMsg, at)
		require.NoError(t, err)
		assert.Equal(t, want.Health, got.Health, "step %d", i)
		assert.Equal(t, want.ConsecutiveFailures, got.ConsecutiveFailures, "step %d", i)
		assert.Equal(t, want.DegradedAt == nil, got.DegradedAt == nil, "step %d", i)
		assert.Equal(t, want.LastError, got.LastError, "step %d", i)
	}

	states, err := db.ListAgentHealth(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.False(t, states[0].IsDegraded())
	assert.NotNil(t, states[0].LastSuccessAt)
}

func TestRunEvents(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	site, err := db.UpsertSite(ctx, "example.com", time.Now())
	require.NoError(t, err)
	run, _, err := db.CreateRun(ctx, newRun(site, false))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, db.InsertRunEvent(ctx, model.RunEvent{ID: uuid.New(), RunID: run.ID, Event: "run.created", CreatedAt: now}))
	require.NoError(t, db.InsertRunEvent(ctx, model.RunEvent{ID: uuid.New(), RunID: run.ID, Event: "run.started", Data: map[string]any{"workers": 5}, CreatedAt: now.Add(time.Millisecond)}))

	events, err := db.ListRunEvents(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "run.created", events[0].Event)
	assert.Equal(t, 5.0, events[1].Data["workers"])
}
