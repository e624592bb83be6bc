package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/openirrigation/weatherd/internal/aggregate"
	"github.com/openirrigation/weatherd/internal/api"
	"github.com/openirrigation/weatherd/internal/forecast"
	"github.com/openirrigation/weatherd/internal/hybrid"
	"github.com/openirrigation/weatherd/internal/obs"
	"github.com/openirrigation/weatherd/internal/timezone"
)

var cli struct {
	Port                string `env:"PORT" default:"8080" help:"HTTP listen port."`
	PersistenceLocation string `env:"PERSISTENCE_LOCATION" default:"data" help:"Directory for persisted observation state."`
	LocalPersistence    bool   `env:"LOCAL_PERSISTENCE" default:"true" negatable:"" help:"Snapshot and restore the observation store."`
	WUAPIKey            string `env:"WU_API_KEY" name:"wu-api-key" help:"weather.com API key; enables the wu provider."`
	OWMAPIKey           string `env:"OWM_API_KEY" name:"owm-api-key" help:"OpenWeatherMap API key; enables the owm provider."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("weatherd"),
		kong.Description("Weather aggregation and irrigation-decision service for networked sprinkler controllers."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	zones, err := timezone.NewResolver()
	if err != nil {
		log.Fatalf("timezone resolver: %v", err)
	}

	store := obs.NewStore()

	var persister *obs.Persister
	if cli.LocalPersistence {
		persister, err = obs.NewPersister(store, cli.PersistenceLocation)
		if err != nil {
			log.Fatalf("persistence: %v", err)
		}
		persister.Restore()
	}

	local := aggregate.New(store, zones)

	registry := forecast.NewRegistry()
	registry.Register(forecast.NewOpenMeteo(zones))
	if cli.WUAPIKey != "" {
		registry.Register(forecast.NewWeatherCom(cli.WUAPIKey, zones))
	}
	if cli.OWMAPIKey != "" {
		registry.Register(forecast.NewOpenWeatherMap(cli.OWMAPIKey, zones))
	}

	composer := hybrid.New(local, registry, zones)
	server := api.NewServer(store, composer, registry, cli.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	persistDone := make(chan struct{})
	if persister != nil {
		go func() {
			persister.Run(ctx)
			close(persistDone)
		}()
	} else {
		close(persistDone)
		log.Println("persistence disabled (--no-local-persistence)")
	}

	log.Printf("starting server on :%s (providers: %v)", cli.Port, registry.Tags())
	if err := server.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
	<-persistDone
}
