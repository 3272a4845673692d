package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
)

// fixtureName splits "text.2.json" into model "text" and position 2. A file
// without a position ("text.json") sorts after every numbered one.
var fixtureName = regexp.MustCompile(`^(.+?)(?:\.(\d+))?\.(json|txt)$`)

type fixtureFile struct {
	model string
	pos   int
	body  string
}

// loadFixtures reads every .json and .txt file under dir and returns the
// reply sequence per model.
func loadFixtures(dir string) (map[string][]string, error) {
	var files []fixtureFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		m := fixtureName.FindStringSubmatch(d.Name())
		if m == nil {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if m[3] == "json" && !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", p)
		}

		pos := math.MaxInt
		if m[2] != "" {
			pos, _ = strconv.Atoi(m[2])
		}
		files = append(files, fixtureFile{model: m[1], pos: pos, body: string(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	slices.SortStableFunc(files, func(a, b fixtureFile) int {
		return cmp.Or(cmp.Compare(a.model, b.model), cmp.Compare(a.pos, b.pos))
	})
	replies := make(map[string][]string)
	for _, f := range files {
		replies[f.model] = append(replies[f.model], f.body)
	}
	return replies, nil
}
