/*
Copyright 2025 The insightd Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package safety

import "strings"

// FuzzyMatches proposes up to limit replacements for a missing entity id.
// The entity name (after the domain) is split on underscores and tested in
// a fixed permutation order: the full name, then drop-last-word, then
// first-plus-last, then first-only. Candidates sharing the domain rank
// before cross-domain matches.
func FuzzyMatches(missing string, known []string, limit int) []string {
	domain, name := splitEntity(missing)
	words := strings.Split(name, "_")

	var needles []string
	needles = append(needles, name)
	if len(words) > 1 {
		needles = append(needles, strings.Join(words[:len(words)-1], "_")) // drop last word
		needles = append(needles, words[0]+"_"+words[len(words)-1])       // first plus last
	}
	needles = append(needles, words[0]) // first only

	seen := make(map[string]struct{})
	var matches []string
	add := func(candidate string) {
		if candidate == missing {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		matches = append(matches, candidate)
	}

	// Same-domain candidates first, in needle order.
	for _, needle := range needles {
		if needle == "" {
			continue
		}
		for _, candidate := range known {
			if len(matches) >= limit {
				return matches
			}
			cDomain, cName := splitEntity(candidate)
			if cDomain == domain && strings.Contains(cName, needle) {
				add(candidate)
			}
		}
	}
	for _, needle := range needles {
		if needle == "" {
			continue
		}
		for _, candidate := range known {
			if len(matches) >= limit {
				return matches
			}
			_, cName := splitEntity(candidate)
			if strings.Contains(cName, needle) {
				add(candidate)
			}
		}
	}
	return matches
}

func splitEntity(entityID string) (string, string) {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i], entityID[i+1:]
	}
	return "", entityID
}
