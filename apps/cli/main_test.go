package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/acm19/shrink/internal/shrink"
)

func TestPrompter_Confirm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "empty answer means yes", input: "\n", expected: true},
		{name: "explicit yes", input: "Y\n", expected: true},
		{name: "lowercase n declines", input: "n\n", expected: false},
		{name: "uppercase N declines", input: "N\n", expected: false},
		{name: "no declines", input: "no\n", expected: false},
		{name: "anything else is yes", input: "sure\n", expected: true},
		{name: "closed input declines", input: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := newPrompter(strings.NewReader(tt.input), &out)
			if got := p.confirm("Continue?"); got != tt.expected {
				t.Errorf("Expected %v, got: %v", tt.expected, got)
			}
			if !strings.Contains(out.String(), "Continue?") {
				t.Errorf("Expected question to be printed, got: %q", out.String())
			}
		})
	}
}

func TestPrompter_ConfirmImage_ShowsDimensions(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("y\n"), &out)

	p.confirmImage(shrink.Inspection{File: "/lib/a.jpg", Width: 4000, Height: 3000})

	expected := "/lib/a.jpg: 4000x3000\nResize (Y/n)?"
	if !strings.Contains(out.String(), expected) {
		t.Errorf("Expected prompt %q, got: %q", expected, out.String())
	}
}

func TestReportEvent(t *testing.T) {
	tests := []struct {
		name     string
		event    shrink.ProgressEvent
		expected string
	}{
		{
			name:     "skipped prints message as is",
			event:    shrink.ProgressEvent{Stage: shrink.StageSkipped, Current: 1, Total: 2, Message: "SKIPPED: /lib/a.jpg (Resize not required) -- 800 x 600"},
			expected: "SKIPPED: /lib/a.jpg (Resize not required) -- 800 x 600\n",
		},
		{
			name:     "resized appends progress",
			event:    shrink.ProgressEvent{Stage: shrink.StageResized, Current: 2, Total: 5, Message: "Resized a.jpg"},
			expected: "Resized a.jpg 2 / 5\n",
		},
		{
			name:     "failure is a warning",
			event:    shrink.ProgressEvent{Stage: shrink.StageFailed, Current: 3, Total: 5, Message: "a.jpg: broken"},
			expected: "Warning: a.jpg: broken 3 / 5\n",
		},
		{
			name:     "finished",
			event:    shrink.ProgressEvent{Stage: shrink.StageFinished, Message: "Finished Resizing!"},
			expected: "Success: Finished Resizing!\n",
		},
		{
			name:     "checking prints nothing",
			event:    shrink.ProgressEvent{Stage: shrink.StageChecking, Message: "ignored"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			reportEvent(&out, tt.event)
			if out.String() != tt.expected {
				t.Errorf("Expected %q, got: %q", tt.expected, out.String())
			}
		})
	}
}

func TestRootCmd_HasCommands(t *testing.T) {
	expected := []string{"index", "import", "scan", "resize", "bulk", "remove-original", "cursor", "settings", "serve"}
	for _, name := range expected {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected command %q to be registered", name)
		}
	}
}
