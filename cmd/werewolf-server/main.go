// The werewolf-server binary runs the moderator's assistant: roster and
// group management, role suggestions, and live game tracking, served over
// HTTP for the moderator's phone and any companion displays.
package main

import (
	"errors"
	"net/http"
	"os"

	"github.com/bcspragu/Werewolf/cryptorand"
	"github.com/bcspragu/Werewolf/memstore"
	"github.com/bcspragu/Werewolf/sqlstore"
	"github.com/bcspragu/Werewolf/web"
	"github.com/bcspragu/Werewolf/werewolf"
	"github.com/gorilla/securecookie"
	"github.com/namsral/flag"
	"go.uber.org/zap"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "The address to run the web server on.")
		dbPath       = flag.String("db", "werewolf.db", "Path to the SQLite snapshot file. Empty means in-memory only, state is lost on restart.")
		hashKeyFile  = flag.String("hash_key_file", "hashKey", "File containing the cookie HMAC key. Created if absent.")
		blockKeyFile = flag.String("block_key_file", "blockKey", "File containing the cookie encryption key. Created if absent.")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var db werewolf.DB
	if *dbPath == "" {
		db = memstore.New()
	} else {
		sdb, err := sqlstore.New(*dbPath, logger)
		if err != nil {
			logger.Fatal("failed to open snapshot store", zap.Error(err))
		}
		defer sdb.Close()
		db = sdb
	}

	sc, err := loadKeys(*hashKeyFile, *blockKeyFile)
	if err != nil {
		logger.Fatal("failed to load cookie keys", zap.Error(err))
	}

	srv := web.New(db, cryptorand.New(), sc, logger)

	logger.Info("serving", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, srv); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func loadKeys(hashKeyFile, blockKeyFile string) (*securecookie.SecureCookie, error) {
	hashKey, err := loadOrGenKey(hashKeyFile)
	if err != nil {
		return nil, err
	}

	blockKey, err := loadOrGenKey(blockKeyFile)
	if err != nil {
		return nil, err
	}

	return securecookie.New(hashKey, blockKey), nil
}

func loadOrGenKey(name string) ([]byte, error) {
	f, err := os.ReadFile(name)
	if err == nil {
		return f, nil
	}

	dat := securecookie.GenerateRandomKey(32)
	if dat == nil {
		return nil, errors.New("failed to generate key")
	}

	if err := os.WriteFile(name, dat, 0600); err != nil {
		return nil, err
	}
	return dat, nil
}
