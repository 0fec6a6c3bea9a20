// Package mmap maps partition files read-only for loading.
//
// A load maps the whole file, decodes every section out of the mapping and
// closes it, so the decoded column is the only copy made:
//
//	f, err := mmap.Open("p000001/prop-000003.tpp")
//	if err != nil { ... }
//	defer f.Close()
//	_ = f.Advise(mmap.AdviceSequential, mmap.AdviceWillNeed)
//	data, err := f.Bytes()
//
// Unix uses mmap(2) and madvise(2). Windows maps a view of the file and
// ignores advice.
package mmap
