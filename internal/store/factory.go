package store

import (
	"basegraph.app/relay/core/db/sqlc"
)

// Stores provides access to all store implementations.
// It can be instantiated with either a connection pool or a transaction.
type Stores struct {
	queries *sqlc.Queries
}

// NewStores creates a new Stores instance from sqlc.Queries.
// The queries can be backed by either a connection pool or a transaction.
//
// Usage with pool (non-transactional):
//
//	stores := store.NewStores(db.Queries())
//	job, err := stores.Jobs().GetByID(ctx, 123)
//
// Usage with transaction:
//
//	err := db.WithTx(ctx, func(q *sqlc.Queries) error {
//	    stores := store.NewStores(q)
//	    // All operations share the same transaction
//	    if err := stores.Jobs().Create(ctx, job); err != nil {
//	        return err
//	    }
//	    return stores.JobMessages().Append(ctx, msg)
//	})
func NewStores(queries *sqlc.Queries) *Stores {
	return &Stores{queries: queries}
}

// Jobs returns the JobStore
func (s *Stores) Jobs() JobStore {
	return newJobStore(s.queries)
}

// JobMessages returns the JobMessageStore
func (s *Stores) JobMessages() JobMessageStore {
	return newJobMessageStore(s.queries)
}

// JobIterations returns the JobIterationStore
func (s *Stores) JobIterations() JobIterationStore {
	return newJobIterationStore(s.queries)
}

// Features returns the FeatureStore
func (s *Stores) Features() FeatureStore {
	return newFeatureStore(s.queries)
}

// Repositories returns the RepositoryStore (for agent-managed code repos)
func (s *Stores) Repositories() RepositoryStore {
	return newRepositoryStore(s.queries)
}

// CodeBranches returns the CodeBranchStore
func (s *Stores) CodeBranches() CodeBranchStore {
	return newCodeBranchStore(s.queries)
}

// CodePullRequests returns the CodePullRequestStore
func (s *Stores) CodePullRequests() CodePullRequestStore {
	return newCodePullRequestStore(s.queries)
}

// Clients returns the ClientStore
func (s *Stores) Clients() ClientStore {
	return newClientStore(s.queries)
}

// Members returns the MemberStore
func (s *Stores) Members() MemberStore {
	return newMemberStore(s.queries)
}
