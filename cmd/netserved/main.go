/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command netserved is a demo binary wiring every netserve component
// together: it loads a listen-list config via viper/cobra, builds one
// protoserver.Server per entry, registers them with a supervisor, and
// runs until an OS signal asks it to drain.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nabbar/netserve/logger"
	"github.com/nabbar/netserve/metrics"
	"github.com/nabbar/netserve/paramsource"
	"github.com/nabbar/netserve/protoserver"
	"github.com/nabbar/netserve/supervisor"
	"github.com/nabbar/netserve/tracectx"
)

var cfgFile string

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netserved",
		Short: "runs the netserve multi-protocol listener demo",
		RunE:  runServe,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML/JSON/TOML config file")
	_ = viper.BindPFlag("configFile", cmd.PersistentFlags().Lookup("config"))

	return cmd
}

func loadConfig() (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("NETSERVED")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Name == "" {
		cfg.Name = "netserved"
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.New(logger.InfoLevel)
	reg := metrics.NewRegistry(nil)

	var listenCfg supervisor.Config
	for _, l := range cfg.Listen {
		opt, err := l.toOptions()
		if err != nil {
			return err
		}
		listenCfg = append(listenCfg, opt)
	}

	if len(listenCfg) == 0 {
		return fmt.Errorf("no listen entries configured")
	}

	engine := buildGinEngine()
	factories := buildFactories(engine, reg, log)

	sup, err := supervisor.Build(listenCfg, factories, log)
	if err != nil {
		return err
	}

	if err := sup.Start(); err != nil {
		return fmt.Errorf("starting protocol servers: %w", err)
	}
	log.Entry(logger.InfoLevel, "netserved started").FieldAdd("name", cfg.Name).Log()

	waitForSignal(cmd.Context())

	log.Entry(logger.InfoLevel, "netserved draining").Log()
	return sup.Stop()
}

func waitForSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case <-quit:
	case <-ctx.Done():
	}
}

// buildGinEngine wires the gin.Engine shared by http/https/http2 entries:
// one demo route exercises the parameter-binding hook (component C9)
// against a path and query parameter. No health route is mounted.
func buildGinEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/echo/:name", func(c *gin.Context) {
		carrier := paramsource.NewGinCarrier(c, nil)

		descriptors := []paramsource.Descriptor{
			{Source: paramsource.Path, Name: "name", Validator: "required,alpha"},
			{Source: paramsource.Query, Name: "loud", Validator: "omitempty"},
		}

		result, verr := paramsource.Bind(carrier, descriptors)
		if verr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}

		name, _ := result.Values[0].(string)
		c.JSON(http.StatusOK, gin.H{"echo": name})
	})

	return engine
}

// buildFactories returns one protoserver.Factory per protocol, grouped
// under supervisor.FactoryByProtocol so supervisor.Build can construct a
// Server for every configured listen entry.
func buildFactories(engine *gin.Engine, reg *metrics.Registry, log logger.Logger) supervisor.FactoryByProtocol {
	grpcRegister := func(s *grpc.Server) {
		hs := health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(s, hs)
	}

	wsEcho := func(ctx context.Context, conn *websocket.Conn, t *tracectx.Trace) {
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}

	return supervisor.FactoryByProtocol{
		protoserver.ProtocolHTTP:  func(opt protoserver.Options) protoserver.Server { return protoserver.NewHTTP(opt, engine, reg, log) },
		protoserver.ProtocolHTTPS: func(opt protoserver.Options) protoserver.Server { return protoserver.NewHTTPS(opt, engine, reg, log) },
		protoserver.ProtocolHTTP2: func(opt protoserver.Options) protoserver.Server { return protoserver.NewHTTP2(opt, engine, reg, log) },
		protoserver.ProtocolGRPC:  func(opt protoserver.Options) protoserver.Server { return protoserver.NewGRPC(opt, grpcRegister, reg, log) },
		protoserver.ProtocolWS:    func(opt protoserver.Options) protoserver.Server { return protoserver.NewWS(opt, wsEcho, reg, log) },
		protoserver.ProtocolWSS:   func(opt protoserver.Options) protoserver.Server { return protoserver.NewWS(opt, wsEcho, reg, log) },
	}
}
