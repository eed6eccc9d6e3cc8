package records

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/synset-tree/library/log"
)

// RecordFetcher loads the flat record sets the query shapes need.
type RecordFetcher interface {
	FetchByNameSubstring(ctx context.Context, term string) ([]Record, error)
	FetchRootRecords(ctx context.Context) ([]Record, error)
	FetchDirectChildren(ctx context.Context, parentPath string) ([]Record, error)
}

// Service answers hierarchy queries by combining a fetcher with a Builder.
type Service struct {
	fetcher RecordFetcher
	builder *Builder
	logger  logSDK.Logger
}

// NewService wires a fetcher and an optional size lookup into a Service.
func NewService(fetcher RecordFetcher, sizes SizeLookup, logger logSDK.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if logger == nil {
		logger = log.Logger.Named("records_service")
	}

	return &Service{
		fetcher: fetcher,
		builder: NewBuilder(sizes, logger.Named("builder")),
		logger:  logger,
	}, nil
}

// Query resolves intent, fetches the matching records and shapes them
// into the response nodes.
func (s *Service) Query(ctx context.Context, intent Intent) ([]*Node, error) {
	plan, err := Resolve(intent)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	startAt := time.Now()
	rows, err := s.fetch(ctx, plan)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	nodes, err := s.builder.Build(ctx, rows, plan.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "build records tree")
	}

	s.loggerFromContext(ctx).Debug("records query",
		zap.String("intent", intent.Kind.String()),
		zap.String("mode", plan.Mode.String()),
		zap.Int("rows", len(rows)),
		zap.Int("nodes", len(nodes)),
		zap.Duration("cost", time.Since(startAt)))

	return nodes, nil
}

func (s *Service) fetch(ctx context.Context, plan Plan) ([]Record, error) {
	switch plan.Kind {
	case FetchSubstring:
		rows, err := s.fetcher.FetchByNameSubstring(ctx, plan.Term)
		if err != nil {
			return nil, errors.Wrap(err, "fetch records by substring")
		}
		return rows, nil
	case FetchRoots:
		rows, err := s.fetcher.FetchRootRecords(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "fetch root records")
		}
		return rows, nil
	case FetchDirectChildren:
		rows, err := s.fetcher.FetchDirectChildren(ctx, plan.Parent)
		if err != nil {
			return nil, errors.Wrap(err, "fetch direct children")
		}
		return filterDirectChildren(rows, plan.Parent), nil
	default:
		return nil, errors.Errorf("unknown fetch kind %d", plan.Kind)
	}
}

func (s *Service) loggerFromContext(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			return ctxLogger.Named("records_service")
		}
	}

	return s.logger
}
