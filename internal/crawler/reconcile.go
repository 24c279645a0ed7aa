package crawler

// Reconcile diffs the remote document listing against what is already
// captured. Dataset membership is authoritative: a document that is in the
// dataset is never scheduled even if its local files are gone. Local files
// only let the pipeline skip the download or conversion step.
//
// remote holds document URLs, converted and raw hold local basenames.
func Reconcile(remote []string, persisted []Record, converted, raw []string) Plan {
	done := make(BasenameSet, len(persisted))
	for _, rec := range persisted {
		done.Add(ConvertedToRaw(rec.Filename))
	}
	convertedRaw := make(BasenameSet, len(converted))
	for _, name := range converted {
		convertedRaw.Add(ConvertedToRaw(name))
	}
	downloaded := NewBasenameSet(raw...)

	plan := Plan{Remote: len(remote), Persisted: len(persisted)}
	scheduled := make(BasenameSet, len(remote))
	for _, u := range remote {
		base := BasenameFromURL(u)
		if base == "" || done.Has(base) || scheduled.Has(base) {
			continue
		}
		scheduled.Add(base)

		item := WorkItem{
			URL:           u,
			RawName:       base,
			ConvertedName: RawToConverted(base),
		}
		if !convertedRaw.Has(base) {
			item.NeedsConvert = true
			plan.Convert++
			if !downloaded.Has(base) {
				item.NeedsDownload = true
				plan.Download++
			}
		}
		plan.ToProcess = append(plan.ToProcess, item)
	}
	return plan
}
