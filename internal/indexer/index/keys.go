package index

// Key layout in the shared pebble database:
//
//	idx/{name}/doc/{uuid} → bson Document
const prefixIdx = "idx/"

func docPrefix(name string) []byte {
	key := make([]byte, 0, len(prefixIdx)+len(name)+5)
	key = append(key, prefixIdx...)
	key = append(key, name...)
	key = append(key, "/doc/"...)
	return key
}

func docKey(name, uuid string) []byte {
	return append(docPrefix(name), uuid...)
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
