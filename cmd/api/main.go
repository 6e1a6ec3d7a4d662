package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"

	"github.com/emorales/contabridge/internal/config"
	"github.com/emorales/contabridge/internal/handlers"
	"github.com/emorales/contabridge/internal/middleware"
	"github.com/emorales/contabridge/internal/refdata"
	"github.com/emorales/contabridge/internal/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Output templates must be loadable or no conversion can produce a file
	templates, err := refdata.LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("Failed to load output templates: %v", err)
	}
	log.Println("✓ Output templates loaded successfully")

	// The SAT table is loaded once at startup; without it the catalog
	// endpoint answers with a reference-data error instead of refusing to boot.
	sat, err := refdata.LoadSATTable(cfg.SATTablePath)
	if err != nil {
		log.Printf("Warning: SAT grouping table unavailable (%v), catalog conversions disabled", err)
		sat = nil
	} else {
		log.Printf("✓ SAT grouping table loaded (%d entries)", sat.Len())
	}

	var groups *refdata.GroupCatalog
	if cfg.GroupCatalogPath != "" {
		groups, err = refdata.LoadGroupCatalog(cfg.GroupCatalogPath)
		if err != nil {
			log.Printf("Warning: default group catalog unavailable (%v), each request must upload one", err)
			groups = nil
		} else {
			log.Printf("✓ Default group catalog loaded (%d groups)", groups.Len())
		}
	}

	convertHandler := handlers.NewConvertHandler(cfg, sat, groups, templates)

	app := fiber.New(fiber.Config{
		AppName:      "contabridge v1.0",
		BodyLimit:    int(cfg.MaxUploadBytes) + 1024*1024,
		ErrorHandler: utils.ErrorHandler,
	})

	app.Use(middleware.CORS())

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "contabridge",
		})
	})

	app.Get("/", handlers.Index)

	v1 := app.Group("/v1")
	v1.Post("/convert/catalog", convertHandler.ConvertCatalog)
	v1.Post("/convert/policies", convertHandler.ConvertPolicies)

	app.Use(handlers.NotFound)

	log.Println("✓ All routes configured successfully")
	log.Println("")
	log.Printf("🚀 contabridge is running on :%d", cfg.Port)
	log.Printf("   Upload form: http://localhost:%d/", cfg.Port)
	log.Printf("   Health check: http://localhost:%d/health", cfg.Port)
	log.Fatal(app.Listen(fmt.Sprintf(":%d", cfg.Port)))
}
