package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestOutputFormatter_Emit(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Emit(map[string]int{"sessions": 3}, "run-1", renderString("ignored")))

		var resp struct {
			Status string         `json:"status"`
			Data   map[string]int `json:"data"`
			RunID  string         `json:"run_id"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 3, resp.Data["sessions"])
		assert.Equal(t, "run-1", resp.RunID)
		assert.NotContains(t, buf.String(), "ignored")
	})

	t.Run("json without run", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Emit([]string{}, "", nil))
		assert.NotContains(t, buf.String(), "run_id")
	})

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		errBuf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf, ErrWriter: errBuf, Verbose: true}

		require.NoError(t, f.Emit(nil, "run-1", renderString("3 sessions\n")))
		assert.Equal(t, "3 sessions\n", buf.String())
		assert.Contains(t, errBuf.String(), "Exported run run-1")
	})

	t.Run("render error", func(t *testing.T) {
		f := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}
		err := f.Emit(nil, "", func(io.Writer) error { return errors.New("boom") })
		assert.EqualError(t, err, "boom")
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		verbose bool
		details any
		want    []string
		notWant []string
	}{
		{"text", "text", false, nil, []string{"Error [E004]: export rejected"}, []string{"Details:"}},
		{"text hides details", "text", false, "line 42", nil, []string{"Details:"}},
		{"text verbose details", "text", true, "line 42", []string{"Details: line 42"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}
			require.NoError(t, f.Error(ErrCodeInput, "export rejected", tt.details))
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.notWant {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	details := map[string]string{"file": "export.csv", "line": "42"}
	require.NoError(t, f.Error(ErrCodeInput, "bad row", details))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInput, resp.Error.Code)
	assert.Equal(t, "bad row", resp.Error.Message)
	assert.Equal(t, map[string]any{"file": "export.csv", "line": "42"}, resp.Error.Details)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	t.Run("quiet", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Writer: buf}
		f.VerboseLog("Reading %s", "export.csv")
		assert.Empty(t, buf.String())
	})

	t.Run("falls back to Writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Writer: buf, Verbose: true}
		f.VerboseLog("Reading %s", "export.csv")
		assert.Equal(t, "Reading export.csv\n", buf.String())
	})

	t.Run("keeps JSON clean", func(t *testing.T) {
		buf := &bytes.Buffer{}
		errBuf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf, ErrWriter: errBuf, Verbose: true}
		f.VerboseLog("Reading %s", "export.csv")
		assert.Empty(t, buf.String())
		assert.Equal(t, "Reading export.csv\n", errBuf.String())
	})
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())

	wrapped := WrapExitError(ExitFailure, "export rejected", errors.New("BAD_LEVEL: unknown level"))
	assert.Equal(t, "export rejected: BAD_LEVEL: unknown level", wrapped.Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "open", os.ErrNotExist))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.ErrorIs(t, wrapped, os.ErrNotExist)
}
