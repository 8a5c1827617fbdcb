package main

import (
	"flag"

	"github.com/go-i2p/logger"

	"github.com/eblanton/cjdns/lib/config"
	"github.com/eblanton/cjdns/lib/node"
	"github.com/eblanton/cjdns/lib/util/signals"
)

var log = logger.GetGoI2PLogger()

func main() {
	cfgFile := flag.String("config", "", "Path to the config file")
	listen := flag.String("listen", "", "UDP listen address (overrides config)")
	flag.Parse()

	config.CfgFile = *cfgFile
	config.InitConfig()
	cfg := config.NewNodeConfigFromViper()
	if *listen != "" {
		cfg.ListenAddress = *listen
	}

	go signals.Handle()
	log.Debug("starting mesh node")
	n, err := node.CreateNode(cfg)
	if err != nil {
		log.Errorf("failed to create node: %s", err)
		return
	}
	signals.RegisterReloadHandler(func() {
		config.InitConfig()
		n.ConnectConfiguredPeers()
	})
	signals.RegisterInterruptHandler(func() {
		n.Stop()
	})
	if err := n.Start(); err != nil {
		log.Errorf("failed to start node: %s", err)
		return
	}
	n.Wait()
	if err := n.Close(); err != nil {
		log.Errorf("error during shutdown: %s", err)
	}
	signals.StopHandle()
}
