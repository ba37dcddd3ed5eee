package anchor

// SerializeForCBOR converts Metadata into a form suitable for external CBOR
// libraries: every string value longer than maxSegmentBytes is split into
// an ordered slice of chunks instead of one long string, since some CBOR
// encoders and the environments that consume them cap individual string
// lengths. Non-string values pass through unchanged.
const maxSegmentBytes = 64

// SerializeForCBOR returns a generic, CBOR-library-friendly tree: maps keyed
// by string (the original int label re-rendered as a decimal string, since
// most CBOR map-key conventions in this ecosystem are string-keyed), long
// strings replaced by their ordered byte-chunk slices.
func SerializeForCBOR(meta Metadata) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for label, entry := range meta {
		out[labelKey(label)] = serializeEntry(entry)
	}
	return out
}

func labelKey(label int) string {
	const decimalDigits = "0123456789"
	if label == 0 {
		return "0"
	}
	buf := make([]byte, 0, 20)
	n := label
	for n > 0 {
		buf = append([]byte{decimalDigits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}

func serializeEntry(e *Entry) map[string]interface{} {
	if e == nil {
		return nil
	}
	return map[string]interface{}{
		"type":         splitString(e.Type),
		"agentId":      splitString(e.AgentID),
		"rootHash":     splitString(e.RootHash),
		"manifestHash": splitOptionalString(e.ManifestHash),
		"merkleRoot":   splitOptionalString(e.MerkleRoot),
		"storageUri":   splitOptionalString(e.StorageURI),
		"timestamp":    e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	}
}

func splitOptionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return splitString(s)
}

// splitString breaks s into chunks of at most maxSegmentBytes bytes,
// returning a single-element slice when it already fits.
func splitString(s string) []string {
	if len(s) <= maxSegmentBytes {
		return []string{s}
	}
	var chunks []string
	b := []byte(s)
	for len(b) > 0 {
		n := maxSegmentBytes
		if n > len(b) {
			n = len(b)
		}
		chunks = append(chunks, string(b[:n]))
		b = b[n:]
	}
	return chunks
}
