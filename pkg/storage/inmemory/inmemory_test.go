package inmemory_test

import (
	"time"

	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/mnemo/pkg/utils/test"
)

var _ = testutils.DescribeDriver("inmemory", func(now func() time.Time) storage.Driver {
	return inmemory.NewDriver(inmemory.WithClock(now))
})
