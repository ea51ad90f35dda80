package fslfeat

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/datalad/datalad-neuroimaging/internal/logging"
)

var contrastVarExpr = regexp.MustCompile(`^([^\d]+)(\d+)\.(\d+)`)

// switches that, when off, mark a processing step as disabled
var proceduralSwitches = map[string]bool{
	"tsplot_yn":                true,
	"poststats_yn":             true,
	"melodic_yn":               true,
	"stats_yn":                 true,
	"regstandard_yn":           true,
	"regstandard_nonlinear_yn": true,
	"filtering_yn":             true,
}

var ignoredVars = map[string]bool{
	"relative_yn":    true,
	"help_yn":        true,
	"featwatcher_yn": true,
	"sscleanup_yn":   true,
	"zdisplay":       true,
	"zmin":           true,
	"zmax":           true,
	"rendertype":     true,
	"bgimage":        true,
	"constcol":       true,
}

var transcode = map[string]map[string]any{
	"analysis": {
		"0": "nofirstlevel",
		"7": "full",
		"1": "preprocessing",
		"2": "statistics",
	},
	"level": {
		"1": "first",
		"2": "higher",
	},
	"inputtype": {
		"1": "featdir",
		"2": "cope",
	},
	"mc": {
		"0": "none",
		"1": "mcflirt",
	},
	"st": {
		"0": "none",
		"1": "regularup",
		"2": "regulardown",
		"3": "sliceordercfgfile",
		"4": "slicetimingcfgfile",
		"5": "interleaved",
	},
	"motionevs": {
		"0": false,
		"1": true,
	},
	"mixed_yn": {
		"0": "me_ols",
		"1": "me_flame1+2",
		"2": "me_flame1",
		"3": "fixedeffects",
	},
	"thresh": {
		"0": "none",
		"1": "uncorrected",
		"2": "voxel",
		"3": "cluster",
	},
	"tempfilt_yn": {
		"0": false,
		"1": true,
	},
	"shape": {
		"0":  "square",
		"1":  "sinusoid",
		"2":  "custom_ev1",
		"3":  "custom_ev3",
		"4":  "interaction",
		"10": "empty",
	},
}

// ConvertValue returns s as an int, a float or, failing both, unchanged.
func ConvertValue(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

func isZero(v any) bool {
	switch v := v.(type) {
	case int:
		return v == 0
	case float64:
		return v == 0
	case bool:
		return !v
	}
	return false
}

// setVector stores val at 1-based position pos of rec[name], allocating a
// zero vector of length size on first use.
func setVector(rec map[string]any, name string, size, pos int, val any) {
	vec, _ := rec[name].([]any)
	if vec == nil {
		vec = make([]any, size)
		for i := range vec {
			vec[i] = 0
		}
	}
	for len(vec) < pos {
		vec = append(vec, 0)
	}
	vec[pos-1] = val
	rec[name] = vec
}

func record(m map[int]map[string]any, id int) map[string]any {
	rec, ok := m[id]
	if !ok {
		rec = make(map[string]any)
		m[id] = rec
	}
	return rec
}

func sortedRecords(m map[int]map[string]any) []any {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// splitEV splits an EV variable like "evtitle12" into its name and id. All
// trailing digits form the id, so designs with ten or more EVs keep them
// apart.
func splitEV(v string) (string, int, bool) {
	if v == "" || strings.Contains(v, ".") || strings.HasPrefix(v, "conmask") {
		return "", 0, false
	}
	i := len(v)
	for i > 0 && v[i-1] >= '0' && v[i-1] <= '9' {
		i--
	}
	if i == len(v) || i == 0 {
		return "", 0, false
	}
	id, err := strconv.Atoi(v[i:])
	if err != nil {
		return "", 0, false
	}
	return v[:i], id, true
}

// ReadFSF parses a FEAT design file. Absolute paths below dsRoot are made
// relative to it.
func ReadFSF(r io.Reader, dsRoot string, logger *zap.Logger) (map[string]any, error) {
	logger = logging.OrNop(logger)
	props := make(map[string]any)
	evs := make(map[int]map[string]any)
	contrasts := make(map[int]map[string]any)
	disabled := make(map[string]bool)
	counts := make(map[string]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "set ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[1], "fmri(") || !strings.HasSuffix(fields[1], ")") {
			logger.Debug("Ignoring unknown/malformed setting", zap.String("line", line))
			continue
		}
		raw := fields[1]
		name := raw[5 : len(raw)-1]
		if ignoredVars[name] || strings.HasPrefix(name, "conpic_") {
			continue
		}
		sval := strings.Trim(strings.TrimSpace(line[strings.Index(line, raw)+len(raw):]), `"`)

		store := props
		if evName, id, ok := splitEV(name); ok {
			store = record(evs, id)
			name = evName
		}
		if dsRoot != "" && strings.HasPrefix(sval, dsRoot) {
			if rel, err := filepath.Rel(dsRoot, sval); err == nil {
				sval = filepath.ToSlash(rel)
			}
		}
		var val any = sval
		if tc, ok := transcode[name][sval]; ok {
			val = tc
		}
		if s, ok := val.(string); ok {
			val = ConvertValue(s)
		}

		if proceduralSwitches[name] {
			if isZero(val) {
				disabled[strings.TrimSuffix(name, "_yn")] = true
			}
			continue
		}
		if name == "evs_orig" || name == "evs_real" {
			if n, ok := val.(int); ok {
				counts[name] = n
			}
		}
		name = strings.TrimSuffix(name, "_yn")
		if s, ok := val.(string); ok && s == "" {
			continue
		}

		if m := contrastVarExpr.FindStringSubmatch(name); m != nil {
			vname := m[1]
			con, _ := strconv.Atoi(m[2])
			pos, _ := strconv.Atoi(m[3])
			if vname == "ortho" {
				// there is no EV 0
				if pos == 0 {
					continue
				}
				setVector(record(evs, con), vname, counts["evs_orig"], pos, val)
				continue
			}
			if pos == 0 {
				continue
			}
			size := counts["evs_orig"]
			if strings.Contains(vname, "_real") {
				size = counts["evs_real"]
			}
			setVector(record(contrasts, con), vname, size, pos, val)
			continue
		}
		if strings.HasPrefix(name, "conname_") {
			parts := strings.Split(name, ".")
			con, err := strconv.Atoi(parts[len(parts)-1])
			if err != nil {
				logger.Debug("Malformed contrast name setting", zap.String("line", line))
				continue
			}
			record(contrasts, con)["name"] = val
			continue
		}
		store[name] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read design file: %w", err)
	}

	for _, ev := range evs {
		if vec, ok := ev["ortho"].([]any); ok {
			allZero := true
			for _, x := range vec {
				if !isZero(x) {
					allZero = false
					break
				}
			}
			if allZero {
				delete(ev, "ortho")
			}
		}
	}
	props["ev"] = sortedRecords(evs)
	props["contrasts"] = sortedRecords(contrasts)
	steps := make([]string, 0, len(disabled))
	for s := range disabled {
		steps = append(steps, s)
	}
	sort.Strings(steps)
	props["steps_disabled"] = steps
	return props, nil
}
