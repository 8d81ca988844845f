package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra-monitor/pkg/models"
)

func sampleLogs(n int) []models.LogEntry {
	logs := make([]models.LogEntry, n)
	for i := range logs {
		logs[i] = models.LogEntry{
			Level:     models.LevelInfo,
			Message:   fmt.Sprintf("event %d", i),
			Timestamp: "2026-08-31T10:00:00Z",
		}
	}
	return logs
}

func TestService_SummarizeLogs_UsesTrailingWindow(t *testing.T) {
	provider := NewMockProvider()
	provider.Response = "summary text"
	svc := NewService(provider)

	got := svc.SummarizeLogs(context.Background(), sampleLogs(120))
	assert.Equal(t, "summary text", got)

	require.Len(t, provider.Prompts, 1)
	prompt := provider.Prompts[0]
	assert.NotContains(t, prompt, "event 69", "older lines must be clipped")
	assert.Contains(t, prompt, "event 70")
	assert.Contains(t, prompt, "event 119")
}

func TestService_SummarizeLogs_FallbackOnProviderError(t *testing.T) {
	provider := NewMockProvider()
	provider.Err = errors.New("quota exceeded")
	svc := NewService(provider)

	got := svc.SummarizeLogs(context.Background(), sampleLogs(3))
	assert.Equal(t, FallbackSummary, got)
}

func TestService_AnalyzeLogs_FallbackOnProviderError(t *testing.T) {
	provider := NewMockProvider()
	provider.Err = errors.New("network unreachable")
	svc := NewService(provider)

	got := svc.AnalyzeLogs(context.Background(), sampleLogs(3))
	assert.Equal(t, FallbackAnalysis, got)
}

func TestService_ExplainCrash(t *testing.T) {
	provider := NewMockProvider()
	provider.Response = "dereferenced a nil pointer"
	svc := NewService(provider)

	crash := &models.CrashReport{
		Error:        "NullPointerException",
		AffectedFile: "CheckoutViewModel.kt",
		StackTrace:   "at CheckoutViewModel.submit(CheckoutViewModel.kt:42)",
	}
	got := svc.ExplainCrash(context.Background(), crash)
	assert.Equal(t, "dereferenced a nil pointer", got)

	require.Len(t, provider.Prompts, 1)
	assert.Contains(t, provider.Prompts[0], "NullPointerException")
	assert.Contains(t, provider.Prompts[0], "CheckoutViewModel.kt")
}

func TestService_ExplainCrash_FallbackOnProviderError(t *testing.T) {
	provider := NewMockProvider()
	provider.Err = errors.New("service unavailable")
	svc := NewService(provider)

	got := svc.ExplainCrash(context.Background(), &models.CrashReport{Error: "boom"})
	assert.Equal(t, FallbackCrash, got)
}

func TestFormatLogs(t *testing.T) {
	out := formatLogs([]models.LogEntry{
		{Timestamp: "t1", Level: models.LevelWarn, Message: "slow frame"},
		{Timestamp: "t2", Level: models.LevelError, Message: "failed"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[t1] [warn] slow frame", lines[0])
	assert.Equal(t, "[t2] [error] failed", lines[1])
}
