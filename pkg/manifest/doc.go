// Package manifest records what an export produced.
//
// After every output file is closed, the application writes
// export-manifest.json into the output directory. It lists each export run
// (one per cadence chunk) and every file the run produced with its size and
// BLAKE3 digest, so that a later Verify can detect truncated or modified
// outputs.
//
//	repo := manifest.NewFileRepository(outputDir)
//	m := manifest.Manifest{Option: "all", Created: time.Now().UTC()}
//	run := manifest.Run{ID: runID, Start: 100, End: 199}
//	if err := run.AddFile(path, "pixels"); err != nil {
//	    return err
//	}
//	m.Runs = append(m.Runs, run)
//	if err := repo.Save(ctx, m); err != nil {
//	    return err
//	}
package manifest
