package scenario

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/internal/model"
)

const acmeYAML = `
id: acme
name: Acme Corp
checkpoints:
  - id: acme-1
    context:
      company: Acme Corp
      stage: negotiation
      amount: 120000
      pain_points: [slow onboarding]
      stakeholders:
        - name: Dana
          role: VP Sales
    ground_truth:
      outcome: lost
      actual_risks: [budget freeze]
    artifacts:
      - id: email-3
        type: email
        content: "Budget review next week."
  - id: acme-2
    task_type: summary
    context:
      company: Acme Corp
      stage: closed
    ground_truth:
      outcome: lost
`

const globexJSON = `{
  "id": "globex",
  "name": "Globex",
  "checkpoints": [
    {"id": "globex-1", "context": {"company": "Globex", "stage": "discovery"}, "ground_truth": {"outcome": "won"}}
  ]
}`

func suiteFS() fstest.MapFS {
	return fstest.MapFS{
		"public/acme.yaml":    {Data: []byte(acmeYAML)},
		"private/globex.json": {Data: []byte(globexJSON)},
		"public/README.md":    {Data: []byte("ignored")},
	}
}

func TestLoadFS(t *testing.T) {
	suite, err := LoadFS(suiteFS())
	require.NoError(t, err)

	require.Len(t, suite.Scenarios, 3)
	first := suite.Scenarios[0]
	assert.Equal(t, "acme-1", first.ID)
	assert.Equal(t, "acme", first.DealID)
	assert.Equal(t, "Acme Corp", first.DealName)
	assert.Equal(t, model.VisibilityPublic, first.Visibility)
	assert.Equal(t, 120000.0, first.Context.Amount)
	assert.Equal(t, []string{"budget freeze"}, first.GroundTruth.ActualRisks)
	assert.Equal(t, []string{"email-3"}, first.ArtifactIDs())

	assert.Equal(t, model.TaskSummary, suite.Scenarios[1].TaskType)

	last := suite.Scenarios[2]
	assert.Equal(t, "globex-1", last.ID)
	assert.Equal(t, model.VisibilityPrivate, last.Visibility)

	assert.Equal(t, 2, suite.Deals())
	assert.Equal(t, map[model.Visibility]int{model.VisibilityPublic: 2, model.VisibilityPrivate: 1}, suite.Counts())
	assert.Contains(t, suite.Digest, "blake3:")
}

func TestDigestIsStableAndContentSensitive(t *testing.T) {
	a, err := LoadFS(suiteFS())
	require.NoError(t, err)
	b, err := LoadFS(suiteFS())
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)

	changed := suiteFS()
	changed["private/globex.json"] = &fstest.MapFile{Data: []byte(`{"id":"globex","checkpoints":[{"id":"globex-1","ground_truth":{"outcome":"lost"}}]}`)}
	c, err := LoadFS(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest, c.Digest)
}

func TestVisibilityCannotBeOverriddenByFile(t *testing.T) {
	fsys := fstest.MapFS{
		"private/x.yaml": {Data: []byte("id: x\ncheckpoints:\n  - id: x-1\n    visibility: public\n")},
	}
	suite, err := LoadFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPrivate, suite.Scenarios[0].Visibility)
}

func TestLoadFSErrors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "duplicate checkpoint across groups",
			fsys: fstest.MapFS{
				"public/a.yaml":  {Data: []byte("id: a\ncheckpoints:\n  - id: dup\n")},
				"private/b.yaml": {Data: []byte("id: b\ncheckpoints:\n  - id: dup\n")},
			},
			want: "duplicate checkpoint id",
		},
		{
			name: "missing deal id",
			fsys: fstest.MapFS{"public/a.yaml": {Data: []byte("checkpoints:\n  - id: a-1\n")}},
			want: "deal id is required",
		},
		{
			name: "missing checkpoint id",
			fsys: fstest.MapFS{"public/a.yaml": {Data: []byte("id: a\ncheckpoints:\n  - question: hi\n")}},
			want: "id is required",
		},
		{
			name: "unknown task type",
			fsys: fstest.MapFS{"public/a.yaml": {Data: []byte("id: a\ncheckpoints:\n  - id: a-1\n    task_type: poetry\n")}},
			want: "unknown task type",
		},
		{
			name: "duplicate artifact",
			fsys: fstest.MapFS{"public/a.yaml": {Data: []byte("id: a\ncheckpoints:\n  - id: a-1\n    artifacts:\n      - id: e\n      - id: e\n")}},
			want: "duplicate artifact id",
		},
		{
			name: "malformed",
			fsys: fstest.MapFS{"public/a.json": {Data: []byte("{not json")}},
			want: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFS(tt.fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFSEmpty(t *testing.T) {
	_, err := LoadFS(fstest.MapFS{"public/notes.txt": {Data: []byte("x")}})
	require.ErrorIs(t, err, ErrEmptySuite)
}

func TestFilter(t *testing.T) {
	suite, err := LoadFS(suiteFS())
	require.NoError(t, err)

	assert.Len(t, suite.Filter(model.ModePublic), 2)
	assert.Len(t, suite.Filter(model.ModePrivate), 1)
	assert.Len(t, suite.Filter(model.ModeFull), 3)

	got, ok := suite.Get("globex-1")
	require.True(t, ok)
	assert.Equal(t, "globex", got.DealID)
	_, ok = suite.Get("nope")
	assert.False(t, ok)
}

func TestLoadMissingDir(t *testing.T) {
	_, err := Load(t.TempDir() + "/missing")
	require.Error(t, err)
}
