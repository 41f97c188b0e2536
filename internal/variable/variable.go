// Package variable defines the fixed set of named data items tracked by the
// engine and the replica-placement rule that maps a variable to the sites
// that host it.
package variable

import (
	"fmt"
	"strconv"
	"strings"
)

// Name returns the canonical name for a variable index, e.g. Name(4) == "x4".
func Name(index int) string {
	return fmt.Sprintf("x%d", index)
}

// InitialValue is the committed value every variable holds before any write
// lands: 10 times its index.
func InitialValue(index int) int {
	return 10 * index
}

// IsReplicated reports whether index is an even-indexed variable, which is
// replicated at every site. Odd-indexed variables live at exactly one site.
func IsReplicated(index int) bool {
	return index%2 == 0
}

// HomeSite returns the single site that hosts an odd-indexed variable:
// 1 + (index mod numSites). It is meaningless for replicated variables.
func HomeSite(index, numSites int) int {
	return 1 + index%numSites
}

// Sites returns every site index (1..numSites) that hosts the variable at
// index, in ascending order.
func Sites(index, numSites int) []int {
	if IsReplicated(index) {
		sites := make([]int, numSites)
		for i := range sites {
			sites[i] = i + 1
		}
		return sites
	}
	return []int{HomeSite(index, numSites)}
}

// HostsVariable reports whether site siteID hosts the variable at index.
func HostsVariable(index, siteID, numSites int) bool {
	if IsReplicated(index) {
		return true
	}
	return HomeSite(index, numSites) == siteID
}

// Index parses a variable name of the form "x<k>" back into its numeric
// index. It reports false for anything else.
func Index(name string) (int, bool) {
	if !strings.HasPrefix(name, "x") {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
