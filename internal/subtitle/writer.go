package subtitle

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// SRTWriter serializes a file back to SRT.
type SRTWriter struct{}

// NewWriter creates a new subtitle file writer
func NewWriter() Writer {
	return &SRTWriter{}
}

func (w *SRTWriter) Write(path string, file *File) error {
	if file == nil {
		return fmt.Errorf("subtitle data is empty")
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	return writeSRT(out, file)
}

// Render serializes the file to an in-memory SRT document for export
// through the API.
func Render(file *File) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("subtitle data is empty")
	}
	var buf bytes.Buffer
	if err := writeSRT(&buf, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSRT(dst io.Writer, file *File) error {
	writer := bufio.NewWriter(dst)

	for _, cue := range file.Cues {
		fmt.Fprintf(writer, "%d\n", cue.Index)

		startTime := formatDuration(cue.StartTime)
		endTime := formatDuration(cue.EndTime)
		fmt.Fprintf(writer, "%s --> %s\n", startTime, endTime)

		// refined text wins, then first-pass translation, then original
		text := cue.DisplayText()
		if text == "" {
			text = cue.Text
		}
		fmt.Fprintf(writer, "%s\n\n", text)
	}

	return writer.Flush()
}

// formatDuration formats time.Duration to SRT time format
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	milliseconds := int(d.Milliseconds()) % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, milliseconds)
}
