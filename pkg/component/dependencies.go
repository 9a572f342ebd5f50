package component

import (
	"github.com/veesix-networks/zconfig/pkg/config"
	"github.com/veesix-networks/zconfig/pkg/env"
)

type Dependencies struct {
	Config *config.Config
	Env    *env.Environment
}
