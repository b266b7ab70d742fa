package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetsimlabs/vetrec/internal/domain"
)

func TestParseWhereClause(t *testing.T) {
	tests := []struct {
		clause   string
		field    string
		operator string
		value    string
		wantErr  bool
	}{
		{clause: "status=completed", field: "status", operator: "=", value: "completed"},
		{clause: "scenario!=smoke", field: "scenario", operator: "!=", value: "smoke"},
		{clause: "name~client", field: "name", operator: "~", value: "client"},
		{clause: "name!~draft", field: "name", operator: "!~", value: "draft"},
		{clause: "session^2026", field: "session", operator: "^", value: "2026"},
		{clause: "scenario$intake", field: "scenario", operator: "$", value: "intake"},
		{clause: "status=", wantErr: true},
		{clause: "=completed", wantErr: true},
		{clause: "no operator here", wantErr: true},
		{clause: "name~[invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			wc, err := ParseWhereClause(tt.clause)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.field, wc.Field)
			assert.Equal(t, tt.operator, wc.Operator)
			assert.Equal(t, tt.value, wc.Value)
		})
	}
}

func TestWhereClauseMatch(t *testing.T) {
	meta := &domain.Session{
		SessionID:    "2026-08-29T10:00:00.000Z_client-intake",
		ScenarioID:   "client-intake",
		ScenarioName: "Client intake form",
		Status:       domain.StatusCompleted,
		Duration:     4200,
		Evaluation:   &domain.Evaluation{Result: domain.EvalSuccess},
	}

	tests := []struct {
		clause string
		want   bool
	}{
		{"status=completed", true},
		{"status=in_progress", false},
		{"status!=in_progress", true},
		{"scenario=client-intake", true},
		{"name~intake", true},
		{"name!~intake", false},
		{"session^2026-08", true},
		{"scenario$intake", true},
		{"result=success", true},
		{"result!=failure", true},
		{"duration=4200", true},
		{"bogusfield=x", false},
	}

	for _, tt := range tests {
		t.Run(tt.clause, func(t *testing.T) {
			wc, err := ParseWhereClause(tt.clause)
			require.NoError(t, err)
			assert.Equal(t, tt.want, wc.Match(meta))
		})
	}
}

func TestWhereClauseMatchNoEvaluation(t *testing.T) {
	meta := &domain.Session{
		SessionID: "s1",
		Status:    domain.StatusInProgress,
	}

	wc, err := ParseWhereClause("result=success")
	require.NoError(t, err)
	assert.False(t, wc.Match(meta))

	wc, err = ParseWhereClause("result!=success")
	require.NoError(t, err)
	assert.True(t, wc.Match(meta))
}

func TestWhereFilterANDLogic(t *testing.T) {
	f, err := NewWhereFilter([]string{"status=completed", "result=success"})
	require.NoError(t, err)

	pass := &domain.Session{
		Status:     domain.StatusCompleted,
		Evaluation: &domain.Evaluation{Result: domain.EvalSuccess},
	}
	assert.True(t, f.Match(pass))

	partial := &domain.Session{
		Status:     domain.StatusCompleted,
		Evaluation: &domain.Evaluation{Result: domain.EvalFailure},
	}
	assert.False(t, f.Match(partial))
}

func TestWhereFilterEmptyAllowsAll(t *testing.T) {
	f, err := NewWhereFilter(nil)
	require.NoError(t, err)
	require.Nil(t, f)
	assert.True(t, f.Match(&domain.Session{SessionID: "anything"}))
}
