package irc

import "strings"

// shaper.go implements the three pure outbound-grouping operations: batching
// channel joins, capability requests and monitor targets into the minimum
// number of protocol lines that each fit the 512-byte wire limit. All three
// share the same algorithm: run a byte counter over the items (item length
// plus one separator), start a new bucket whenever the next item would push
// the counter past the per-command budget, and preserve input order within
// each bucket.

// capBudget is the number of bytes available for the space-joined capability
// list of a "CAP REQ :…" line, leaving room for "CAP REQ :" and the trailing
// "\r\n".
const capBudget = maxLineLen - len("CAP REQ :\r\n")

// groupCapabilityRequests splits caps into one or more "CAP REQ :…" lines,
// each within the wire byte budget.
func groupCapabilityRequests(caps []string) []Message {
	var msgs []Message
	for _, chunk := range chunkByBudget(caps, capBudget) {
		msgs = append(msgs, NewMessage("CAP", "REQ", strings.Join(chunk, " ")))
	}
	return msgs
}

// joinBudget leaves room for "JOIN " and "\r\n"; the keys, if any, are
// appended as a second space-separated list sharing the same budget.
const joinBudget = maxLineLen - len("JOIN \r\n")

// groupJoins partitions channels into keyless and keyed (per the keys map),
// emitting "JOIN c1,c2,…" for the keyless ones and "JOIN c1,c2 k1,k2" for the
// keyed ones, preserving positional pairing between channels and keys.
func groupJoins(channels []string, keys map[string]string) []Message {
	var keyless, keyed, keyedKeys []string
	for _, c := range channels {
		if k, ok := keys[c]; ok && k != "" {
			keyed = append(keyed, c)
			keyedKeys = append(keyedKeys, k)
		} else {
			keyless = append(keyless, c)
		}
	}

	var msgs []Message
	for _, chunk := range chunkByBudget(keyless, joinBudget) {
		msgs = append(msgs, NewMessage("JOIN", strings.Join(chunk, ",")))
	}

	// Keyed channels are chunked together with their keys so that the
	// positional pairing between the two comma lists survives truncation;
	// the budget accounts for both lists sharing one line.
	start := 0
	for start < len(keyed) {
		end := start + 1
		chanLen := len(keyed[start])
		keyLen := len(keyedKeys[start])
		for end < len(keyed) {
			nextLen := chanLen + 1 + len(keyed[end]) + keyLen + 1 + len(keyedKeys[end]) + 1
			if nextLen > joinBudget {
				break
			}
			chanLen += 1 + len(keyed[end])
			keyLen += 1 + len(keyedKeys[end])
			end++
		}
		msgs = append(msgs, NewMessage("JOIN", strings.Join(keyed[start:end], ","), strings.Join(keyedKeys[start:end], ",")))
		start = end
	}

	return msgs
}

// monitorBudget leaves room for "MONITOR + :…" and "\r\n".
const monitorBudget = maxLineLen - len("MONITOR + \r\n")

// groupMonitors truncates targets to targetLimit (if positive, as set by the
// server's ISUPPORT MONITOR parameter) and emits one or more
// "MONITOR + t1,t2,…" lines.
func groupMonitors(targets []string, targetLimit int) []Message {
	if targetLimit > 0 && len(targets) > targetLimit {
		targets = targets[:targetLimit]
	}

	var msgs []Message
	for _, chunk := range chunkByBudget(targets, monitorBudget) {
		msgs = append(msgs, NewMessage("MONITOR", "+", strings.Join(chunk, ",")))
	}
	return msgs
}

// chunkByBudget fills buckets greedily: it keeps a running byte counter (item
// length plus one separator byte) and starts a new bucket whenever the next
// item would push it past budget, preserving input order within each bucket.
// A single item longer than budget still gets its own bucket.
func chunkByBudget(items []string, budget int) [][]string {
	if len(items) == 0 {
		return nil
	}

	var chunks [][]string
	var current []string
	count := 0

	for _, item := range items {
		added := len(item) + 1
		if count+added > budget && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			count = 0
		}
		current = append(current, item)
		count += added
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}
