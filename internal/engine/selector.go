package engine

// batchSelection is the next contiguous group of cues to submit as one
// translation unit.
type batchSelection struct {
	FileID string
	CueIDs []string
}

// ownerResolver maps a cue id to its owning file.
type ownerResolver interface {
	OwnerOf(cueID string) (string, bool)
}

// selectBatch walks the queue from the front, collecting ids that belong to
// the queue head's file, stopping at the batch size or the first id from a
// different file. Batches never mix files.
//
// If the head no longer resolves to any file (the file was removed), the
// stale id is returned so the caller can drop it and retry selection.
func selectBatch(queue *processingQueue, resolver ownerResolver, batchSize int) (batchSelection, string) {
	head, ok := queue.Head()
	if !ok {
		return batchSelection{}, ""
	}

	fileID, ok := resolver.OwnerOf(head)
	if !ok {
		return batchSelection{}, head
	}

	if batchSize < 1 {
		batchSize = 1
	}

	selection := batchSelection{FileID: fileID}
	for _, id := range queue.Snapshot() {
		owner, ok := resolver.OwnerOf(id)
		if !ok || owner != fileID {
			break
		}
		selection.CueIDs = append(selection.CueIDs, id)
		if len(selection.CueIDs) >= batchSize {
			break
		}
	}
	return selection, ""
}
