package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/connectly-api/connectly/internal/client"
)

var users = []struct {
	name string
}{
	{"alice"},
	{"bob"},
	{"carol"},
	{"dave"},
	{"erin"},
}

var posts = []struct {
	postType string
	title    string
	content  string
	metadata map[string]any
}{
	{"text", "Hello Connectly", "First post on the platform. Say hi below!", nil},
	{"text", "", "Anyone else migrating their side project to Go this year?", nil},
	{"article", "Scaling a Social API on SQLite", "We ran a social API on a single SQLite file for a year. Here is what we learned about write contention, backups, and when to finally move on.", nil},
	{"image", "Sunset over the bay", "Caught this on my evening walk.", map[string]any{"file_size": 1843200, "file_type": "jpg"}},
	{"video", "Keyboard build timelapse", "Three hours of soldering in ninety seconds.", map[string]any{"duration": 90, "file_size": 52428800}},
	{"poll", "Tabs or spaces?", "Settle it once and for all.", nil},
	{"text", "Reading recommendations", "Looking for good books on distributed systems. What should I start with?", nil},
	{"article", "Why We Chose Bearer Tokens Over Sessions", "A short write-up on the tradeoffs we weighed for API authentication.", nil},
	{"image", "Office plant update", "It lives!", map[string]any{"file_size": 921600, "file_type": "png"}},
	{"text", "", "Shipping on a Friday. Wish me luck.", nil},
}

var comments = []string{
	"Great post! Thanks for sharing.",
	"I disagree with the premise here, but it's well argued.",
	"Has anyone benchmarked this? I'd love to see numbers.",
	"This reminds me of the early days of the internet.",
	"Interesting take. I wonder how this scales.",
	"I've been working on something similar. Happy to collaborate!",
	"Can you share more details about the implementation?",
	"This is why I love this community.",
	"I tried this and it works great!",
	"Not sure I agree, but appreciate the perspective.",
	"Would love to see a follow-up post on this.",
	"Bookmarked for later. Looks really useful.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Connectly server URL")
	password := flag.String("password", "seedpassword1", "Password for seeded users")
	flag.Parse()

	log.Printf("Seeding database at %s...\n", *baseURL)

	// Register all users and keep their logged-in clients
	var clients []*client.Client
	for _, u := range users {
		c := client.New(*baseURL)
		if err := c.RegisterAndLogin(u.name, u.name+"@example.com", *password); err != nil {
			log.Fatalf("register %s: %v", u.name, err)
		}
		log.Printf("✓ Registered user: %s", u.name)
		clients = append(clients, c)
	}

	// Create posts from random users
	var postIDs []int64
	for _, p := range posts {
		userIdx := rand.Intn(len(clients))
		c := clients[userIdx]

		post, err := c.CreatePost(p.postType, p.title, p.content, p.metadata)
		if err != nil {
			log.Printf("✗ Failed to create post: %v", err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Printf("✓ Created post #%d: %s (by %s)", post.ID, post.Title, users[userIdx].name)

		// Small delay to spread out created_at times
		time.Sleep(50 * time.Millisecond)
	}

	// Add comments from random users
	for _, postID := range postIDs {
		// 1-4 comments per post
		numComments := rand.Intn(4) + 1
		for i := 0; i < numComments; i++ {
			userIdx := rand.Intn(len(clients))
			c := clients[userIdx]
			text := comments[rand.Intn(len(comments))]

			comment, err := c.CreateComment(postID, text)
			if err != nil {
				log.Printf("✗ Failed to comment: %v", err)
				continue
			}
			log.Printf("✓ Comment #%d on post #%d (by %s)", comment.ID, postID, users[userIdx].name)
		}
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:  %d\n", len(users))
	fmt.Printf("Posts:  %d\n", len(postIDs))
	fmt.Println("\nAPI at:", *baseURL)
}
