package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/config"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/splitdb/role"
	"github.com/adrianoaguiar/m2-ce-splitdb/pkg/util/ast"
	"github.com/pingcap/log"
	"github.com/pingcap/tidb/util/logutil"
	"github.com/siddontang/go-mysql/mysql"
	"go.uber.org/zap"
)

var (
	configFilePath = flag.String("config", "conf/splitdb.yaml", "splitdb config file path")
	execute        = flag.String("e", "", "statements to run, separated by ';'")
	roleDirective  = flag.String("role", "", "force statements to the read or write connection")
)

func main() {
	flag.Parse()
	cfgData, err := ioutil.ReadFile(*configFilePath)
	if err != nil {
		fmt.Printf("read config file error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.UnmarshalSplitDBConfig(cfgData)
	if err != nil {
		fmt.Printf("parse config file error: %v\n", err)
		os.Exit(1)
	}

	if err := initLogger(cfg.Log); err != nil {
		fmt.Printf("init logger error: %v\n", err)
		os.Exit(1)
	}

	app := splitdb.NewApp(cfg)
	if err = app.Init(); err != nil {
		fmt.Printf("splitdb init error: %v\n", err)
		app.Close()
		os.Exit(1)
	}

	if *execute != "" {
		code := runStatements(app, *execute, role.Parse(*roleDirective))
		app.Close()
		os.Exit(code)
	}

	if !cfg.AdminServer.Enable {
		fmt.Println("nothing to do: pass -e or enable the admin server")
		app.Close()
		os.Exit(1)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGPIPE,
		syscall.SIGUSR1,
	)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for {
			sig := <-sc
			if sig == syscall.SIGINT || sig == syscall.SIGTERM || sig == syscall.SIGQUIT {
				logutil.BgLogger().Warn("get os signal, close splitdb", zap.String("signal", sig.String()))
				app.Close()
				break
			} else {
				logutil.BgLogger().Warn("ignore os signal", zap.String("signal", sig.String()))
			}
		}
	}()

	app.Run()
	wg.Wait()
}

func initLogger(cfg config.Log) error {
	logCfg := &log.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		File: log.FileLogConfig{
			Filename:   cfg.LogFile.Filename,
			MaxSize:    cfg.LogFile.MaxSize,
			MaxDays:    cfg.LogFile.MaxDays,
			MaxBackups: cfg.LogFile.MaxBackups,
		},
	}
	if logCfg.Level == "" {
		logCfg.Level = "info"
	}
	logger, props, err := log.InitLogger(logCfg)
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

func runStatements(app *splitdb.App, sql string, directive role.Role) int {
	stmts, err := ast.SplitStatements(sql)
	if err != nil {
		fmt.Printf("parse statements error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	adapter := app.NewAdapter()
	defer adapter.Close()

	for _, stmt := range stmts {
		res, err := adapter.QueryRole(ctx, role.Text(stmt), nil, directive)
		if err != nil {
			fmt.Printf("%s\nerror: %v\n", stmt, err)
			return 1
		}
		r := role.Write
		if adapter.IsUsingReadConnection() {
			r = role.Read
		}
		fmt.Printf("%s\n-- %s connection\n", stmt, r)
		printResult(res)
	}
	return 0
}

func printResult(res *mysql.Result) {
	if res == nil {
		return
	}
	if res.Resultset == nil || len(res.Fields) == 0 {
		fmt.Printf("affected rows: %d, last insert id: %d\n", res.AffectedRows, res.InsertId)
		return
	}

	names := make([]string, 0, len(res.Fields))
	for _, f := range res.Fields {
		names = append(names, string(f.Name))
	}
	fmt.Println(strings.Join(names, "\t"))
	for i := 0; i < res.RowNumber(); i++ {
		values := make([]string, 0, res.ColumnNumber())
		for j := 0; j < res.ColumnNumber(); j++ {
			v, err := res.GetString(i, j)
			if err != nil {
				v = "?"
			}
			values = append(values, v)
		}
		fmt.Println(strings.Join(values, "\t"))
	}
	fmt.Printf("%d rows\n", res.RowNumber())
}
