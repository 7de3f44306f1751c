package main

import "encoding/json"

// encodeBuffer/decodeBuffer layer a plain integer queue on top of the
// monitor's opaque []byte datum (§4.7 of SPEC_FULL.md), the same way the
// original Python demo kept a bare Python list as the monitor's shared
// data and relied on the monitor core to stay agnostic of its contents.
func encodeBuffer(buf []int) []byte {
	data, _ := json.Marshal(buf)
	return data
}

func decodeBuffer(data []byte) []int {
	if len(data) == 0 {
		return nil
	}
	var buf []int
	if err := json.Unmarshal(data, &buf); err != nil {
		return nil
	}
	return buf
}
