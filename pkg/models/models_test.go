package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAnomalous(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		message string
		want    bool
	}{
		{name: "error level alone", level: LevelError, message: "request timed out", want: true},
		{name: "exception keyword alone", level: LevelInfo, message: "Exception in thread main", want: true},
		{name: "exception embedded", level: LevelDebug, message: "caught NullPointerException, recovering", want: true},
		{name: "both signals", level: LevelError, message: "unhandled Exception", want: true},
		{name: "plain warning", level: LevelWarn, message: "slow frame detected", want: false},
		{name: "plain info", level: LevelInfo, message: "view appeared", want: false},
		{name: "lowercase exception not matched", level: LevelInfo, message: "exception to the rule", want: false},
		{name: "fatal without keyword", level: LevelFatal, message: "process killed", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAnomalous(tt.level, tt.message))
		})
	}
}

func TestValidPlatform(t *testing.T) {
	for _, p := range []string{PlatformIOS, PlatformAndroid, PlatformFlutter, PlatformReactNative} {
		assert.True(t, ValidPlatform(p), p)
	}
	assert.False(t, ValidPlatform("windows-phone"))
	assert.False(t, ValidPlatform(""))
}

func TestValidLogLevel(t *testing.T) {
	for _, l := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal} {
		assert.True(t, ValidLogLevel(l), l)
	}
	assert.False(t, ValidLogLevel("trace"))
	assert.False(t, ValidLogLevel("ERROR"))
}
