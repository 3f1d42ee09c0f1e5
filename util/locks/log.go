package locks

import (
	"github.com/omnilayer/omnicore/logs"
	"github.com/omnilayer/omnicore/util/panics"
)

var log, _ = logs.Get(logs.Tags.CORE)
var spawn = panics.GoroutineWrapperFunc(log)
