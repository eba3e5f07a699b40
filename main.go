package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/deemkeen/vidodon/activitypub"
	"github.com/deemkeen/vidodon/db"
	"github.com/deemkeen/vidodon/queue"
	"github.com/deemkeen/vidodon/util"
	"github.com/deemkeen/vidodon/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	store, err := db.NewStore(util.ResolveFilePath(util.Name + ".db"))
	if err != nil {
		log.Fatalln(err)
	}
	defer store.Close()

	deliverer := activitypub.NewDeliverer(conf)
	refresher := activitypub.NewRefresher(store, deliverer)
	jobs := queue.New(store)
	actors := activitypub.NewActorResolver(store, deliverer, jobs, refresher)
	videos := activitypub.NewVideoResolver(store, deliverer, actors)
	health := activitypub.NewActorFollowHealthCache()
	broadcaster := activitypub.NewBroadcaster(store, deliverer, jobs, health, conf)
	serverActors := activitypub.NewServerActorLoader(store, conf)
	processor := activitypub.NewProcessor(store, actors, videos, broadcaster, conf)
	outbound := activitypub.NewOutbound(store, actors, broadcaster, serverActors, conf)
	scores := activitypub.NewFollowScoreScheduler(store, health)

	broadcaster.RegisterHandlers()
	jobs.Register(queue.JobTypeRefresher, refresher.HandleRefreshJob)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Conf.WithAp {
		if _, err := serverActors.Get(); err != nil {
			log.Fatalln(err)
		}
		jobs.Start(ctx)
		scores.Start(ctx)
	}

	server := web.NewServer(conf, store, actors, serverActors, processor, outbound)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping server")
	cancel()
}
