package streaming

import (
	"bufio"
	"os"
)

// CountLines returns the number of lines in path that start with G, M,
// X or Y, matching the line-counting behavior the original
// implementation got by shelling out to `grep -c "^[GMXY]"` (some
// raster/CAM output has no G/M prefix at all, hence the wider class).
// Kept in-process here: no subprocess, no dependency on a system grep
// being on PATH. The streaming engine forwards every non-blank,
// non-comment, non-directive line, including ones that start with
// other letters (e.g. "T0"), so this count can be lower than the
// streamer's line counter; it is an estimate for progress and ETA.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case 'G', 'M', 'X', 'Y':
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
