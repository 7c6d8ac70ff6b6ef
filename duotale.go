/*
Copyright 2025 DuoTale Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package duotale

import (
	"github.com/duotale/duotale/config"
	"github.com/duotale/duotale/internal/notification"
	redis_db "github.com/duotale/duotale/internal/redis-db"
	"github.com/duotale/duotale/internal/search"
	"github.com/duotale/duotale/store"
	"github.com/redis/go-redis/v9"
)

// Duotale represents the main struct for the DuoTale application.
type Duotale struct {
	queue     *Queue
	search    *search.TypesenseClient
	redis     redis.UniversalClient
	datastore store.IDataStore
	chat      ChatClient
	speech    SpeechClient
}

// NewDuotale initializes a new instance of Duotale with the provided datastore.
// It fetches the configuration and initializes the Redis client, queue, search
// client, and the chat and speech upstream clients.
//
// Parameters:
// - ds store.IDataStore: The datastore for persistence operations.
//
// Returns:
// - *Duotale: A pointer to the newly created Duotale instance.
// - error: An error if any of the initialization steps fail.
func NewDuotale(ds store.IDataStore) (*Duotale, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newSearch := search.NewTypesenseClient(configuration.TypeSenseKey, []string{configuration.TypeSense.Dns})
	newDuotale := &Duotale{
		datastore: ds,
		queue:     newQueue,
		redis:     redisClient.Client(),
		search:    newSearch,
		chat:      NewChatClient(configuration),
		speech:    NewSpeechClient(configuration),
	}

	// Internal packages emit application events through this hook so they
	// never have to import the root package.
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return SendWebhook(NewWebhook{Event: event, Payload: payload})
	})

	return newDuotale, nil
}

// Chat returns the chat-completion client.
func (l *Duotale) Chat() ChatClient {
	return l.chat
}

// Speech returns the speech-synthesis client.
func (l *Duotale) Speech() SpeechClient {
	return l.speech
}
