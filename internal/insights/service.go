package insights

import (
	"context"
	"fmt"
	"strings"

	"spectra-monitor/pkg/logger"
	"spectra-monitor/pkg/models"
)

// Fixed user-visible fallback strings. The AI path never propagates a hard
// error to the caller.
const (
	FallbackSummary  = "Failed to summarize logs."
	FallbackAnalysis = "Failed to analyze logs. Please check API Key configuration."
	FallbackCrash    = "AI Service Unavailable."
)

// summaryWindow bounds how many trailing log lines are sent for a summary
// so huge sessions stay within token limits.
const summaryWindow = 50

type Service struct {
	provider Provider
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// SummarizeLogs produces a short structured summary of the most recent log
// lines for a device.
func (s *Service) SummarizeLogs(ctx context.Context, logs []models.LogEntry) string {
	if len(logs) > summaryWindow {
		logs = logs[len(logs)-summaryWindow:]
	}
	prompt := "Summarize the following application logs. Highlight key events, errors, " +
		"and the general state of the application. Keep it brief and structured.\n\nLogs:\n" +
		formatLogs(logs)

	text, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		logger.Warn("Log summary failed", logger.Err(err))
		return FallbackSummary
	}
	return text
}

// AnalyzeLogs asks for issues, errors and bottlenecks across a log window.
func (s *Service) AnalyzeLogs(ctx context.Context, logs []models.LogEntry) string {
	prompt := "Analyze the following application logs and identify any potential issues, " +
		"errors, or performance bottlenecks. Group related logs if possible. " +
		"Be concise and technical.\n\nLogs:\n" + formatLogs(logs)

	text, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		logger.Warn("Log analysis failed", logger.Err(err))
		return FallbackAnalysis
	}
	return text
}

// ExplainCrash produces a junior-developer-level explanation of a crash
// report with a suggested fix.
func (s *Service) ExplainCrash(ctx context.Context, crash *models.CrashReport) string {
	prompt := fmt.Sprintf(
		"Explain this crash to a junior developer. Suggest a fix.\n\nError: %s\nLocation: %s\nStack: %s",
		crash.Error, crash.AffectedFile, crash.StackTrace)

	text, err := s.provider.Complete(ctx, prompt)
	if err != nil {
		logger.Warn("Crash explanation failed", logger.Err(err))
		return FallbackCrash
	}
	return text
}

func formatLogs(logs []models.LogEntry) string {
	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "[%s] [%s] %s\n", l.Timestamp, l.Level, l.Message)
	}
	return b.String()
}
