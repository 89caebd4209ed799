package world

import "langd/internal/fileset"

// fileMap is a copy-on-write map from FileId to *FileRecord. Cloning it
// copies only the top-level map (small pointer values), so cloning is O(n)
// in file count but leaves every FileRecord and its underlying text/tree
// shared by reference between generations — cheap in practice since the
// file table, not file bodies, is what gets copied. No persistent/HAMT
// collection library exists in the retrieved examples (see DESIGN.md), so
// this is a small hand-rolled substitute rather than a borrowed one.
type fileMap map[fileset.FileId]*FileRecord

// clone returns a shallow copy: same *FileRecord pointers, new top-level map.
func (m fileMap) clone() fileMap {
	out := make(fileMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// with returns a new fileMap equal to m but with id mapped to rec.
func (m fileMap) with(id fileset.FileId, rec *FileRecord) fileMap {
	out := m.clone()
	out[id] = rec
	return out
}

// without returns a new fileMap equal to m but without id.
func (m fileMap) without(id fileset.FileId) fileMap {
	out := m.clone()
	delete(out, id)
	return out
}
