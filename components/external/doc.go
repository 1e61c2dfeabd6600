/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package external contains the clients the adapter uses to talk to remote
// systems: FhirClient reads resources from the FHIR servers of the clients
// and TrackerClient reads and writes tracker data through the tracker Web API.
//
// Both share the HTTP transport built by NewHttpClient, which supports
// timeouts, connection limits and HTTP, HTTPS or SOCKS5 proxies:
//
//	client := external.NewHttpClient(external.HttpConfiguration{
//		ReadTimeoutMs:            5000,
//		MaxParallelRequestsCount: 20,
//		EnableProxy:              true,
//		ProxyScheme:              "socks5",
//		ProxyHost:                "proxy.example.org",
//		ProxyPort:                1080,
//	})
//	fhirClient := external.NewFhirClient(client, logger)
//	trackerClient, err := external.NewTrackerClient(client, external.TrackerConfiguration{
//		BaseURL:  "https://tracker.example.org/api",
//		Username: "admin",
//		Password: "district",
//	})
package external
