package reports

import "sort"

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sortCrossCheck(rows []CrossCheckRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].GroupKey.Less(rows[j].GroupKey) })
}
