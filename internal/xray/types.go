// Copyright (c) 2025 Xraysync
// Licensed under the MIT License. See LICENSE file in the project root for details.

package xray

import "encoding/json"

// QueryParams identifies the tests to count or fetch. ProjectID is required;
// FolderPath and JQL are optional filters and ignored when empty.
type QueryParams struct {
	ProjectID  string
	FolderPath string
	JQL        string
}

// Result is the normalized query outcome. Total is populated in count mode;
// Data always carries the raw GraphQL data object.
type Result struct {
	Total int
	Data  json.RawMessage
}

// graphQLRequest is the standard GraphQL POST body.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// graphQLResponse is the standard GraphQL response envelope. A populated
// Errors field means the query failed even when the HTTP status was 2xx.
type graphQLResponse struct {
	Data   json.RawMessage   `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

// folderInput scopes a query to an Xray folder and its descendants.
type folderInput struct {
	Path               string `json:"path"`
	IncludeDescendants bool   `json:"includeDescendants"`
}

const getTestsCountQuery = `
	query GetTestsDynamic(
		$projectId: String!,
		$folder: FolderSearchInput,
		$jql: String
	) {
		getTests(
			projectId: $projectId,
			folder: $folder,
			jql: $jql,
			limit: 100
		) {
			total
		}
	}
`

const getTestsFullQuery = `
	query GetTestsDynamic(
		$projectId: String!,
		$folder: FolderSearchInput,
		$jql: String
	) {
		getTests(
			projectId: $projectId,
			folder: $folder,
			jql: $jql,
			limit: 100
		) {
			total
			start
			limit
			results {
				issueId
				testType {
					name
				}
				jira(fields: ["key", "summary"])
			}
		}
	}
`
