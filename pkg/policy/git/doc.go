// Package git reads policy documents from a Git repository.
//
// A Repository keeps a local clone of the configured branch and lists the
// policy files under the configured path. A Poller pulls on an interval
// and calls a ReloadFunc whenever a pull changes a policy file. If the
// reload fails the clone is checked out back at the last commit that
// loaded cleanly and reloaded from there, so the running rule set never
// reflects a commit that failed to load.
//
//	repo, err := git.NewRepository(&cfg.Policy.Git, cfg.Policy.Extensions)
//	if err != nil {
//		return err
//	}
//	if err := repo.Clone(ctx); err != nil {
//		return err
//	}
//	poller := git.NewPoller(repo, cfg.Policy.Git.Poll.Interval, reload, logger)
//	if err := poller.Start(ctx); err != nil {
//		return err
//	}
//	defer poller.Stop()
//
// Token, SSH key and anonymous authentication are supported.
package git
