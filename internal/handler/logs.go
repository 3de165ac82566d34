package handler

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// rotatedLogs is how many rotated siblings (<file>.1 ... <file>.N) are read.
const rotatedLogs = 5

// Logs returns the non-empty lines of the service log and its rotated
// siblings. Missing files are skipped.
func (h *Handler) Logs(c *gin.Context) {
	lines, err := readLogLines(h.logFile)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines})
}

func readLogLines(path string) ([]string, error) {
	lines := []string{}
	if path == "" {
		return lines, nil
	}
	files := []string{path}
	for i := 1; i <= rotatedLogs; i++ {
		files = append(files, fmt.Sprintf("%s.%d", path, i))
	}
	for _, name := range files {
		f, err := os.Open(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open log %s: %w", name, err)
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				lines = append(lines, line)
			}
		}
		err = sc.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read log %s: %w", name, err)
		}
	}
	return lines, nil
}
